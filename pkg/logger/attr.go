package logger

import (
	"log/slog"
	"time"
)

// Error logs err under "error". Nil errors produce an empty Attr,
// which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID logs id under "user_id". Nil ids produce an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// RequestID logs the request identifier.
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// CustomerRef logs the billing provider customer reference.
func CustomerRef(ref string) slog.Attr {
	return slog.String("customer_ref", ref)
}

// SubscriptionRef logs the billing provider subscription reference.
func SubscriptionRef(ref string) slog.Attr {
	return slog.String("subscription_ref", ref)
}

func Plan(name string) slog.Attr {
	return slog.String("plan", name)
}

func Status(status string) slog.Attr {
	return slog.String("status", status)
}

func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// Reason logs a failure reason. Empty reasons produce an empty Attr.
func Reason(reason string) slog.Attr {
	if reason == "" {
		return slog.Attr{}
	}
	return slog.String("reason", reason)
}

func Count(n int64) slog.Attr {
	return slog.Int64("count", n)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
