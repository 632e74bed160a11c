package playback

import (
	"errors"
	"testing"
	"testing/synctest"
)

func TestNewSubscription_ChannelsReadable(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sub := newSubscription()

		sub.sendStatus(StatusChange{Previous: StatusStopped, Current: StatusStarting})
		sub.sendTitle(TitleChange{Title: "Morning Show"})
		sub.sendVolume(VolumeChange{Volume: 70})
		sub.sendError(ErrorEvent{Operation: "play", Err: errors.New("boom")})

		e := <-sub.StatusChanged
		if e.Current != StatusStarting {
			t.Errorf("StatusChanged.Current = %v, want Starting", e.Current)
		}

		ti := <-sub.TitleChanged
		if ti.Title != "Morning Show" {
			t.Errorf("TitleChanged.Title = %q, want Morning Show", ti.Title)
		}

		v := <-sub.VolumeChanged
		if v.Volume != 70 {
			t.Errorf("VolumeChanged.Volume = %d, want 70", v.Volume)
		}

		ee := <-sub.Error
		if ee.Operation != "play" {
			t.Errorf("Error.Operation = %q, want play", ee.Operation)
		}
	})
}

func TestSubscription_Close_SignalsDone(t *testing.T) {
	synctest.Test(t, func(_ *testing.T) {
		sub := newSubscription()
		sub.close()
		<-sub.Done
	})
}

func TestSubscription_NonBlocking_DropsWhenFull(t *testing.T) {
	sub := newSubscription()

	// Fill buffer
	for range eventBufferSize + 5 {
		sub.sendStatus(StatusChange{})
	}

	// Should not block or panic - count what we got
	count := 0
	for {
		select {
		case <-sub.StatusChanged:
			count++
		default:
			goto done
		}
	}
done:
	if count != eventBufferSize {
		t.Errorf("received %d events, want %d (buffer size)", count, eventBufferSize)
	}
}
