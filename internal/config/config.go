package config

import (
	"encoding/base64"
	"fmt"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	MessageKey     []byte
	RedisAddr      string
	AllowedOrigins []string
}

func decodeBase64Secret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64SigningSecret, base64MessageKey, redisAddr string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64SigningSecret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeBase64Secret(base64SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	// The message key is optional: when unset the cipher derives a
	// deterministic development key.
	var messageKey []byte
	if base64MessageKey != "" {
		messageKey, err = decodeBase64Secret(base64MessageKey)
		if err != nil {
			return nil, fmt.Errorf("decode message key: %w", err)
		}
		if len(messageKey) != 32 {
			return nil, fmt.Errorf("message key must be 32 bytes, got %d", len(messageKey))
		}
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		MessageKey:     messageKey,
		RedisAddr:      redisAddr,
		AllowedOrigins: allowedOrigins,
	}, nil
}
