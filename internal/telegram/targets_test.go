package telegram

import "testing"

func TestGroupTarget(t *testing.T) {
	env := newTestEnv(t)
	for id, name := range map[int64]string{-1001: "Alpha", -1002: "Bravo", -1001234567890: "Real"} {
		if _, err := env.registry.Add(id, name); err != nil {
			t.Fatalf("seed registry: %v", err)
		}
	}

	tests := []struct {
		token string
		want  int64
		ok    bool
	}{
		{token: "1", want: -1001, ok: true},
		{token: "3", want: -1001234567890, ok: true},
		{token: "4", want: 4, ok: true},
		{token: "1234567890", want: -1001234567890, ok: true},
		{token: "-1002", want: -1002, ok: true},
		{token: "-100999", want: -100999, ok: true},
		{token: "0"},
		{token: "+5", want: 5, ok: true},
		{token: "alpha"},
		{token: ""},
	}

	for _, tt := range tests {
		got, ok := env.router.groupTarget(tt.token)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("groupTarget(%q) = %d, %v; want %d, %v", tt.token, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNextToken(t *testing.T) {
	tests := []struct {
		raw    string
		token  string
		rest   string
		quoted bool
	}{
		{raw: `"Release Notes" hello all`, token: "Release Notes", rest: "hello all", quoted: true},
		{raw: `'a b'`, token: "a b", quoted: true},
		{raw: "word rest of it", token: "word", rest: "rest of it"},
		{raw: `"unterminated rest`, token: `"unterminated`, rest: "rest"},
		{raw: "   "},
	}

	for _, tt := range tests {
		token, rest, quoted := nextToken(tt.raw)
		if token != tt.token || rest != tt.rest || quoted != tt.quoted {
			t.Fatalf("nextToken(%q) = %q, %q, %v; want %q, %q, %v", tt.raw, token, rest, quoted, tt.token, tt.rest, tt.quoted)
		}
	}
}

func TestParseThreadID(t *testing.T) {
	tests := map[string]int{
		"topic_12": 12,
		"12":       12,
		"TOPIC_3":  3,
		"topic_":   0,
		"-1":       0,
		"general":  0,
	}

	for token, want := range tests {
		got, ok := parseThreadID(token)
		if ok != (want != 0) || got != want {
			t.Fatalf("parseThreadID(%q) = %d, %v; want %d", token, got, ok, want)
		}
	}
}

func TestTopicSuffix(t *testing.T) {
	if got := topicSuffix(0); got != "" {
		t.Fatalf("expected no suffix outside topics, got %q", got)
	}
	if got := topicSuffix(12); got != " (topic 12)" {
		t.Fatalf("unexpected suffix: %q", got)
	}
}
