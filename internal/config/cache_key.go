package config

import (
	"fmt"
	"strings"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding the active JWT ID of a user.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// ProctorSessionKey returns the cache key for a proctoring session hash.
func (r *CacheKeyStruct) ProctorSessionKey(sessionID string) string {
	return fmt.Sprintf("proctor:session:%s", sessionID)
}

// ProctorAlertChannel returns the Redis PubSub channel carrying alerts for one proctoring session.
func (r *CacheKeyStruct) ProctorAlertChannel(sessionID string) string {
	return fmt.Sprintf("proctor:session:%s:alerts", sessionID)
}

// ProctorAlertPattern matches every per-session alert channel.
func (r *CacheKeyStruct) ProctorAlertPattern() string {
	return "proctor:session:*:alerts"
}

// SessionIDFromAlertChannel extracts the session id from a channel built by ProctorAlertChannel.
func (r *CacheKeyStruct) SessionIDFromAlertChannel(channel string) (string, bool) {
	const prefix, suffix = "proctor:session:", ":alerts"
	if !strings.HasPrefix(channel, prefix) || !strings.HasSuffix(channel, suffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(channel, prefix), suffix)
	if id == "" {
		return "", false
	}
	return id, true
}

// TestViolationsKey returns the cache key for the live per-student violation counters of a test.
func (r *CacheKeyStruct) TestViolationsKey(testID string) string {
	return fmt.Sprintf("test:%s:violations", testID)
}

// TestMonitorChannel returns the Redis PubSub channel name for a test's live monitor.
func (r *CacheKeyStruct) TestMonitorChannel(testID string) string {
	return fmt.Sprintf("test:%s:monitor", testID)
}

// AnalyzerVerdictKey returns the cache key for a content-analysis verdict.
func (r *CacheKeyStruct) AnalyzerVerdictKey(strategy, digest string) string {
	return fmt.Sprintf("analyzer:verdict:%s:%s", strategy, digest)
}

var CacheKey = NewCacheKeyStruct()
