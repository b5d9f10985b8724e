package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// PasscodeKey returns the cache key for a test descriptor looked up by passcode
func (r *CacheKeyStruct) PasscodeKey(passcode string) string {
	return fmt.Sprintf("test:passcode:%s", passcode)
}

// RevokedTokenKey returns the key marking a logged-out token id
func (r *CacheKeyStruct) RevokedTokenKey(jti string) string {
	return fmt.Sprintf("auth:revoked:%s", jti)
}

// AttemptAnchorKey returns the key of a client-side session anchor
func (r *CacheKeyStruct) AttemptAnchorKey(studentID, testID int64) string {
	return fmt.Sprintf("student:%d:test:%d:anchor", studentID, testID)
}

// TestMonitorChannel returns the Redis PubSub channel name for a test monitor
func (r *CacheKeyStruct) TestMonitorChannel(testID int64) string {
	return fmt.Sprintf("test:%d:monitor", testID)
}

var CacheKey = NewCacheKeyStruct()
