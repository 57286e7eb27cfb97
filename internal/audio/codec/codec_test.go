package codec

import "testing"

func TestOpusCodecEncodeDecodeRoundTrip(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm := make([]int16, FrameSize)
	for i := range pcm {
		pcm[i] = int16(i % 100)
	}

	packet, err := c.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packet) == 0 {
		t.Fatalf("expected non-empty encoded packet")
	}

	decoded, err := c.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != FrameSize {
		t.Fatalf("expected %d decoded samples, got %d", FrameSize, len(decoded))
	}
}

func TestOpusCodecEncodeRejectsWrongFrameSize(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Encode(make([]int16, FrameSize/2)); err == nil {
		t.Fatalf("expected error for undersized frame")
	}
}

func TestOpusCodecConcealLossReturnsFullFrame(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pcm, err := c.ConcealLoss()
	if err != nil {
		t.Fatalf("ConcealLoss: %v", err)
	}
	if len(pcm) != FrameSize {
		t.Fatalf("expected %d concealed samples, got %d", FrameSize, len(pcm))
	}
}

func TestNullEncoderDecoderProducesSilence(t *testing.T) {
	var n NullEncoderDecoder

	packet, err := n.Encode(make([]int16, FrameSize))
	if err != nil || packet != nil {
		t.Fatalf("expected nil packet and no error, got %v, %v", packet, err)
	}

	pcm, err := n.Decode([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, s := range pcm {
		if s != 0 {
			t.Fatalf("expected silence, got non-zero sample %d", s)
		}
	}
}
