package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingClient struct {
	calls int
}

func (c *countingClient) Generate(_ context.Context, _ Request) (string, error) {
	c.calls++
	return "ok", nil
}

func (c *countingClient) Close() error { return nil }

func TestBudget(t *testing.T) {
	ctx := context.Background()
	inner := &countingClient{}
	b := NewBudget(inner, 2)
	now := time.Date(2026, 7, 1, 23, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, err := b.Generate(ctx, Request{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := b.Generate(ctx, Request{}); !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("third call error = %v, want ErrBudgetExhausted", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}

	now = now.Add(2 * time.Hour)
	if _, err := b.Generate(ctx, Request{}); err != nil {
		t.Fatalf("call after rollover: %v", err)
	}
	if b.Used() != 1 {
		t.Errorf("Used() = %d, want 1", b.Used())
	}
}

func TestBudget_Unlimited(t *testing.T) {
	inner := &countingClient{}
	b := NewBudget(inner, 0)
	for i := 0; i < 5; i++ {
		if _, err := b.Generate(context.Background(), Request{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if inner.calls != 5 {
		t.Errorf("inner calls = %d, want 5", inner.calls)
	}
}

func TestNewFromConfig_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "none", cfg: Config{Provider: ProviderNone}},
		{name: "empty provider", cfg: Config{}},
		{name: "gemini without key", cfg: Config{Provider: ProviderGemini}},
		{name: "openai without key", cfg: Config{Provider: ProviderOpenAI}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewFromConfig(context.Background(), tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c != nil {
				t.Errorf("expected nil client, got %T", c)
			}
		})
	}
}

func TestNewFromConfig_OpenAI(t *testing.T) {
	c, err := NewFromConfig(context.Background(), Config{Provider: ProviderOpenAI, OpenAIAPIKey: "k", DailyLimit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(*Budget); !ok {
		t.Errorf("client type = %T, want *Budget", c)
	}
}

func TestNewFromConfig_Unknown(t *testing.T) {
	if _, err := NewFromConfig(context.Background(), Config{Provider: "groq"}); err == nil {
		t.Fatal("expected error")
	}
}
