package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/inclusioncast/internal/forecast"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Account ownership", "Account ownership"},
		{"ACC_OWNERSHIP", "ACC\\_OWNERSHIP"},
		{"49.0%", "49\\.0%"},
		{"(baseline)", "\\(baseline\\)"},
		{"-3.5", "\\-3\\.5"},
		{"a|b=c", "a\\|b\\=c"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// chat ID is parsed before any network call
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func testResult() *forecast.Result {
	return &forecast.Result{
		GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Years:       []int{2025, 2026, 2027},
		Scenarios:   []models.Scenario{{Name: "Baseline", Scale: 1}, {Name: "Optimistic", Scale: 1.5}},
		Trends: []forecast.Trend{
			{Indicator: "ACC_OWNERSHIP", Method: forecast.MethodOLS, Points: 5},
		},
		Rows: []models.ForecastRow{
			{Indicator: "ACC_OWNERSHIP", Year: 2025, Scenario: "Baseline", Value: 52},
			{Indicator: "ACC_OWNERSHIP", Year: 2026, Scenario: "Baseline", Value: 55.5},
			{Indicator: "ACC_OWNERSHIP", Year: 2027, Scenario: "Baseline", Value: 58.3},
			{Indicator: "ACC_OWNERSHIP", Year: 2025, Scenario: "Optimistic", Value: 55},
			{Indicator: "ACC_OWNERSHIP", Year: 2026, Scenario: "Optimistic", Value: 60},
			{Indicator: "ACC_OWNERSHIP", Year: 2027, Scenario: "Optimistic", Value: 64},
		},
	}
}

func TestFormatSummary(t *testing.T) {
	msg := formatSummary(testResult(), 60)

	for _, want := range []string{
		"*Indicator Forecasts*",
		"2025\\-03\\-01 12:00:00",
		"Horizon: 2025–2027",
		"1\\. *ACC\\_OWNERSHIP* \\(ols, 5 pts\\)",
		"Baseline: 58\\.3%",
		"Optimistic: 64\\.0% 🎯 2026",
		"at or above 60%",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("summary missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Baseline: 58\\.3% 🎯") {
		t.Error("baseline never reaches the target and must not be marked")
	}
}

func TestFormatSummary_EscapesNegativeYears(t *testing.T) {
	res := testResult()
	res.Years = []int{-1, 0, 1}
	res.Rows = []models.ForecastRow{
		{Indicator: "ACC_OWNERSHIP", Year: -1, Scenario: "Baseline", Value: 70},
		{Indicator: "ACC_OWNERSHIP", Year: 1, Scenario: "Baseline", Value: 72},
	}

	msg := formatSummary(res, 60)
	if !strings.Contains(msg, "Horizon: \\-1–1") {
		t.Errorf("horizon not escaped:\n%s", msg)
	}
	if !strings.Contains(msg, "Baseline: 72\\.0% 🎯 \\-1") {
		t.Errorf("crossing year not escaped:\n%s", msg)
	}
}

func TestFormatSummary_NoTarget(t *testing.T) {
	msg := formatSummary(testResult(), 0)
	if strings.Contains(msg, "🎯") {
		t.Errorf("no target line expected:\n%s", msg)
	}
}

func TestSendForecastSummary_NilResult(t *testing.T) {
	c := &Client{}
	if err := c.SendForecastSummary(nil, 60); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestDispatch(t *testing.T) {
	handlers := map[string]CommandFunc{
		"forecast": func(_ context.Context, args string) (string, error) {
			return "forecast for " + args, nil
		},
		"broken": func(context.Context, string) (string, error) {
			return "", errors.New("no data")
		},
	}
	ctx := context.Background()

	tests := []struct {
		command, args, want string
	}{
		{"ping", "", "Pong"},
		{"forecast", "  ACC_OWNERSHIP ", "forecast for ACC_OWNERSHIP"},
		{"broken", "", "Error: no data"},
		{"unknown", "", ""},
	}
	for _, tt := range tests {
		if got := dispatch(ctx, handlers, tt.command, tt.args); got != tt.want {
			t.Errorf("dispatch(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}
