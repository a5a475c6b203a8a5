package framebuffer

import "testing"

func TestFlipRows(t *testing.T) {
	pixels := []byte{
		1, 1, 1, 1, 2, 2, 2, 2, // bottom row
		3, 3, 3, 3, 4, 4, 4, 4, // top row
	}
	img, err := FlipRows(pixels, 2, 2)
	if err != nil {
		t.Fatalf("FlipRows: %v", err)
	}
	if got := img.RGBAAt(0, 0).R; got != 3 {
		t.Errorf("top-left = %d, want 3", got)
	}
	if got := img.RGBAAt(1, 1).R; got != 2 {
		t.Errorf("bottom-right = %d, want 2", got)
	}

	if _, err := FlipRows(pixels, 3, 2); err == nil {
		t.Error("expected size mismatch error")
	}
}
