package store

import "testing"

func TestAddAndGetMessages(t *testing.T) {
	s := New(10)

	for _, payload := range []string{"a", "b", "c"} {
		s.Add("t", []byte(payload))
	}

	if got := s.GetMessageCount(); got != 3 {
		t.Fatalf("GetMessageCount() = %d, want 3", got)
	}

	firstID, msgs := s.GetMessages(0, 100)
	if firstID != 0 {
		t.Fatalf("firstID = %d, want 0", firstID)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(msgs[i].Payload) != want {
			t.Errorf("msgs[%d].Payload = %q, want %q", i, msgs[i].Payload, want)
		}
		if msgs[i].ID != uint64(i) {
			t.Errorf("msgs[%d].ID = %d, want %d", i, msgs[i].ID, i)
		}
	}
}

func TestGetMessagesBeyondHighWatermark(t *testing.T) {
	s := New(10)
	s.Add("t", []byte("a"))

	firstID, msgs := s.GetMessages(5, 10)
	if firstID != 1 {
		t.Fatalf("firstID = %d, want 1 (high watermark)", firstID)
	}
	if len(msgs) != 0 {
		t.Fatalf("len(msgs) = %d, want 0", len(msgs))
	}
}

func TestRingWrapResumesAtOldest(t *testing.T) {
	s := New(3)
	for i := 0; i < 5; i++ {
		s.Add("t", []byte{byte('0' + i)})
	}
	// ids 0,1 have been overwritten; oldest retained is 2.
	firstID, msgs := s.GetMessages(0, 10)
	if firstID != 2 {
		t.Fatalf("firstID = %d, want 2", firstID)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	for i, msg := range msgs {
		wantID := uint64(2 + i)
		if msg.ID != wantID {
			t.Errorf("msgs[%d].ID = %d, want %d", i, msg.ID, wantID)
		}
	}
}

func TestGetMessagesRespectsMaxCount(t *testing.T) {
	s := New(10)
	for i := 0; i < 5; i++ {
		s.Add("t", []byte{byte('0' + i)})
	}

	firstID, msgs := s.GetMessages(0, 2)
	if firstID != 0 {
		t.Fatalf("firstID = %d, want 0", firstID)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
}

func TestGetMessagesPayloadSurvivesBufferReuse(t *testing.T) {
	s := New(2)
	s.Add("t", []byte("a"))

	_, msgs := s.GetMessages(0, 10)
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	got := msgs[0].Payload

	// Two more adds fill the ring and wrap it once: id 2 overwrites id 0's
	// slot, recycling id 0's payload buffer through the pool. The earlier read's payload must be
	// unaffected since GetMessages copies rather than aliasing the ring.
	s.Add("t", []byte("bb"))
	s.Add("t", []byte("ccc"))

	if string(got) != "a" {
		t.Fatalf("payload from earlier read changed after buffer reuse: got %q, want %q", got, "a")
	}
}

func TestDefaultCapacity(t *testing.T) {
	s := New(0)
	if len(s.slots) != DefaultCapacity {
		t.Fatalf("len(slots) = %d, want %d", len(s.slots), DefaultCapacity)
	}
}
