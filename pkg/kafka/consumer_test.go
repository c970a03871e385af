package kafka

import (
	"errors"
	"testing"
)

func TestNewConsumerIncompleteConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  ConsumerConfig
	}{
		{"no brokers", ConsumerConfig{Topic: "t", ConsumerGroup: "g"}},
		{"no topic", ConsumerConfig{Brokers: []string{"b:9092"}, ConsumerGroup: "g"}},
		{"no group", ConsumerConfig{Brokers: []string{"b:9092"}, Topic: "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConsumer(&tt.cfg, nil)
			if c != nil || !errors.Is(err, ErrIncompleteConfig) {
				t.Fatalf("NewConsumer = %v, %v", c, err)
			}
		})
	}
}

func TestNewConsumer(t *testing.T) {
	c, err := NewConsumer(&ConsumerConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "t", ConsumerGroup: "g"}, nil)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("new consumer reports disconnected")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.IsConnected() {
		t.Fatal("closed consumer reports connected")
	}
}
