package broker

import (
	"encoding/json"
	"testing"
)

func testClient() *Client {
	return New(DefaultConfig("tcp://127.0.0.1:1883", "edgectl-test", "site1", "bess"))
}

func TestTopicPolicyTable(t *testing.T) {
	cases := []struct {
		suffix     Suffix
		wantQos    byte
		bufferable bool
	}{
		{SuffixTelemetry, QoS0, false},
		{SuffixTelemetryFast, QoS0, false},
		{SuffixAlarms, QoS1, true},
		{SuffixDecisions, QoS1, true},
		{SuffixHeartbeat, QoS0, false},
		{SuffixStatus, QoS1, false},
		{SuffixCommands, QoS2, false},
		{SuffixConfig, QoS2, false},
		{SuffixModels, QoS2, false},
	}
	for _, c := range cases {
		p, ok := policies[c.suffix]
		if !ok {
			t.Fatalf("no policy registered for suffix %s", c.suffix)
		}
		if p.qos != c.wantQos {
			t.Errorf("%s: expected QoS %d, got %d", c.suffix, c.wantQos, p.qos)
		}
		if p.bufferable != c.bufferable {
			t.Errorf("%s: expected bufferable=%v, got %v", c.suffix, c.bufferable, p.bufferable)
		}
	}
}

// TestPublishBuffersBufferableTopicsWhileOffline exercises the offline
// buffering contract: alarms and decisions queue while disconnected.
func TestPublishBuffersBufferableTopicsWhileOffline(t *testing.T) {
	c := testClient()
	if c.IsConnected() {
		t.Fatalf("new client should not report connected before Connect is called")
	}

	c.Publish(SuffixAlarms, []byte(`{"type":"test"}`))
	c.Publish(SuffixDecisions, []byte(`{"action":"CHARGE"}`))

	if got := c.BufferedCount(); got != 2 {
		t.Fatalf("expected 2 buffered messages, got %d", got)
	}
}

// TestPublishDropsNonBufferableTopicsWhileOffline verifies fast/telemetry
// data is not queued: stale readings have no value once finally delivered.
func TestPublishDropsNonBufferableTopicsWhileOffline(t *testing.T) {
	c := testClient()

	c.Publish(SuffixTelemetry, []byte(`{"soc":50}`))
	c.Publish(SuffixTelemetryFast, []byte(`{"soc":50}`))
	c.Publish(SuffixHeartbeat, []byte(`{}`))

	if got := c.BufferedCount(); got != 0 {
		t.Fatalf("expected telemetry/heartbeat to be dropped, not buffered, got %d buffered", got)
	}
}

// TestOfflineBufferDropsOldestWhenFull asserts the bounded FIFO evicts the
// oldest entry rather than rejecting the newest.
func TestOfflineBufferDropsOldestWhenFull(t *testing.T) {
	c := testClient()
	c.cfg.OfflineBufferSize = 3

	for i := 0; i < 5; i++ {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		c.Publish(SuffixAlarms, payload)
	}

	if got := c.BufferedCount(); got != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", got)
	}

	var oldest map[string]int
	if err := json.Unmarshal(c.buffer[0].payload, &oldest); err != nil {
		t.Fatalf("unmarshal oldest buffered payload: %v", err)
	}
	if oldest["seq"] != 2 {
		t.Fatalf("expected oldest surviving entry to be seq=2 (0 and 1 dropped), got seq=%d", oldest["seq"])
	}
}

// TestLastWillPayloadMarksOffline checks the LWT content published on our
// behalf if the connection drops without a clean disconnect.
func TestLastWillPayloadMarksOffline(t *testing.T) {
	c := testClient()
	c.cfg.SiteID = "site42"

	var decoded map[string]any
	if err := json.Unmarshal(c.lwtPayload(), &decoded); err != nil {
		t.Fatalf("unmarshal LWT payload: %v", err)
	}
	if decoded["online"] != false {
		t.Fatalf("expected LWT online=false, got %v", decoded["online"])
	}
	if decoded["site_id"] != "site42" {
		t.Fatalf("expected LWT site_id=site42, got %v", decoded["site_id"])
	}
}

// TestTopicNamingConvention verifies the root/site/suffix shape used for
// every published and subscribed topic.
func TestTopicNamingConvention(t *testing.T) {
	c := testClient()
	c.cfg.TopicRoot = "bess"
	c.cfg.SiteID = "site1"

	got := c.topic(SuffixAlarms)
	want := "bess/site1/alarms"
	if got != want {
		t.Fatalf("expected topic %q, got %q", want, got)
	}
}
