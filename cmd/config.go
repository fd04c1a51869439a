package main

import "time"

type Config struct {
	BadgerFilepath      string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel            string        `env:"LOG_LEVEL,required=true"`
	MessageKey          string        `env:"MESSAGE_KEY,required=true"` // hex-encoded, 32 bytes
	EditWindow          time.Duration `env:"EDIT_WINDOW,default=15m"`
	RejoinCooldown      time.Duration `env:"REJOIN_COOLDOWN,default=48h"`
	SearchScanWindow    int           `env:"SEARCH_SCAN_WINDOW,default=500"`
	SubscriberQueueSize int           `env:"SUBSCRIBER_QUEUE_SIZE,default=16"`
}
