package config

import "time"

const (
	// Typing indicators
	TypingTimeout     = 30 * time.Second
	TypingSweepPeriod = 15 * time.Second

	// Room Registry caches
	MembershipCacheTTL = 60 * time.Second

	// Notification counters
	UnreadCountCacheTTL = 30 * time.Second

	// Pagination
	DefaultHistoryLimit      = 50
	MaxHistoryLimit          = 200
	DefaultNotificationLimit = 50

	// Connection buffers
	ClientSendBuffer = 256
)
