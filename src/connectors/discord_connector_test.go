package connectors

// Test index:
//  1. TestFetchAfter verifies the channel message query and auth header.
//  2. TestExtractText flattens content and embed parts into one blob.
//  3. TestSnowflakeUnix converts snowflake ids to unix seconds.

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/111/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "tok" {
			t.Errorf("missing auth header")
		}
		if r.URL.Query().Get("after") != "900" || r.URL.Query().Get("limit") != "50" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[
			{"id":"902","channel_id":"111","content":"second"},
			{"id":"901","channel_id":"111","content":"first"}]`)
	}))
	defer srv.Close()

	c := NewDiscordClient("tok", srv.URL)

	msgs, err := c.FetchAfter(context.Background(), "111", "900", 50)
	if err != nil {
		t.Fatalf("FetchAfter failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Discord returns newest first.
	if msgs[0].ID != "902" || msgs[1].ID != "901" {
		t.Fatalf("unexpected order: %s, %s", msgs[0].ID, msgs[1].ID)
	}
}

func TestExtractText(t *testing.T) {
	msg := DiscordMessage{
		Content: "SHORT SIGNAL - AGLD/USDT",
		Embeds: []DiscordEmbed{
			{
				Title:       "Entry zone",
				Description: "Entry: $0.398",
				Fields: []DiscordEmbedField{
					{Name: "TP1:", Value: "$0.39402"},
					{Name: "Leverage:", Value: "25x"},
				},
			},
		},
	}

	text := ExtractText(msg)

	for _, want := range []string{"SHORT SIGNAL - AGLD/USDT", "Entry: $0.398", "TP1:", "$0.39402", "25x"} {
		if !strings.Contains(text, want) {
			t.Fatalf("extracted text missing %q:\n%s", want, text)
		}
	}

	if got := ExtractText(DiscordMessage{}); got != "" {
		t.Fatalf("expected empty blob for empty message, got %q", got)
	}
}

func TestSnowflakeUnix(t *testing.T) {
	// 175928847299117063 >> 22 = 41944705796 ms after the Discord epoch,
	// which is 2016-04-30 11:18:25 UTC.
	if got := SnowflakeUnix("175928847299117063"); got != 1462015105 {
		t.Fatalf("unexpected unix ts: %d", got)
	}
	if got := SnowflakeUnix("not-a-snowflake"); got != 0 {
		t.Fatalf("expected 0 for junk id, got %d", got)
	}
}
