// Command vexmqctl is an interactive admin shell for a running vexmqd
// broker: it dials the broker's admin endpoint and issues introspection
// commands. It is not an MQTT client — publishing and subscribing are
// explicitly out of scope.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"time"

	"github.com/abiosoft/ishell"
)

var adminAddr = flag.String("admin", "127.0.0.1:1884", "broker admin endpoint (host:port)")

const dialTimeout = 3 * time.Second

func main() {
	flag.Parse()

	shell := ishell.New()
	shell.Println("vexmq admin shell")
	shell.Printf("admin endpoint: %s\n", *adminAddr)

	shell.AddCmd(&ishell.Cmd{
		Name: "stats",
		Help: "show session, connection, in-flight, and retained-message counts",
		Func: func(ctx *ishell.Context) {
			resp, err := runCommand("stats")
			if err != nil {
				shell.Printf("Failed: %s\n", err.Error())
				return
			}
			shell.Println(resp)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "sessions",
		Help: "list currently known client ids",
		Func: func(ctx *ishell.Context) {
			resp, err := runCommand("sessions")
			if err != nil {
				shell.Printf("Failed: %s\n", err.Error())
				return
			}
			shell.Println(resp)
		},
	})

	shell.Run()
}

func runCommand(cmd string) (string, error) {
	conn, err := net.DialTimeout("tcp", *adminAddr, dialTimeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(dialTimeout))
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", err
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}

	var pretty map[string]any
	if err := json.Unmarshal([]byte(line), &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		return string(out), nil
	}
	return line, nil
}
