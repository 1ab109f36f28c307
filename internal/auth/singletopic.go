package auth

import "github.com/vexmq/broker/internal/topic"

// SingleTopicAuthorizator restricts every client to a single topic
// filter, read and write alike. It's a shortcut for single-tenant
// deployments that want namespace isolation without a full ACL table.
type SingleTopicAuthorizator struct {
	Filter string
}

func (s SingleTopicAuthorizator) CanRead(_ string, topicName string) bool {
	return topic.Match(s.Filter, topicName)
}

func (s SingleTopicAuthorizator) CanWrite(_ string, topicName string) bool {
	return topic.Match(s.Filter, topicName)
}
