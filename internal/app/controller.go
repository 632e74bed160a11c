// Package app wires user commands to the playback supervisor and the
// station discovery client. It owns the applet's visible state and
// pushes a fresh snapshot to its listener on every change.
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/xinia/radiowidget/internal/errmsg"
	"github.com/xinia/radiowidget/internal/playback"
	"github.com/xinia/radiowidget/internal/radiobrowser"
	"github.com/xinia/radiowidget/internal/state"
)

const recentsShown = 10

// errUnknownStation rejects a favorite toggle for a station the
// controller has no record of.
var errUnknownStation = errors.New("station not known here")

// Discovery is the station directory surface the controller needs.
type Discovery interface {
	Search(ctx context.Context, query string) ([]radiobrowser.Station, error)
	Resolve(ctx context.Context, uuid string) (*radiobrowser.Station, error)
	PlayableURL(ctx context.Context, uuid string) (string, error)
	LastMirror() string
}

// Store persists the small applet bookkeeping set. May be nil.
type Store interface {
	SaveRecent(state.RecentStation) error
	RecentStations(limit int) ([]state.RecentStation, error)
	ToggleFavorite(state.FavoriteStation) (bool, error)
	FavoriteStations() ([]state.FavoriteStation, error)
	SaveLastMirror(host string) error
	SaveVolume(v int) error
}

// Snapshot is the applet-visible state. Values are copies; the shell
// renders them without locking.
type Snapshot struct {
	Phase     playback.Status
	Station   string // name of the station being played
	Title     string // stream title reported by the player
	Volume    int
	ErrorText string

	Query     string
	Searching bool
	Results   []radiobrowser.Station
	Recents   []state.RecentStation
	Favorites []state.FavoriteStation
}

type searchResult struct {
	seq      int
	query    string
	stations []radiobrowser.Station
	err      error
}

type playResult struct {
	seq     int
	station radiobrowser.Station
	url     string
	err     error
}

// Controller runs the command loop. One goroutine (Run) owns all of
// its state; discovery calls run in their own goroutines and report
// back through internal channels, where stale replies are discarded.
type Controller struct {
	sup   *playback.Supervisor
	disc  Discovery
	store Store

	cmds      chan Command
	snapshots chan Snapshot

	searches chan searchResult
	plays    chan playResult

	snap      Snapshot
	current   *radiobrowser.Station // station behind snap.Station
	searchSeq int
	playSeq   int
}

// NewController creates a controller; call Run to start it.
func NewController(sup *playback.Supervisor, disc Discovery, store Store) *Controller {
	return &Controller{
		sup:       sup,
		disc:      disc,
		store:     store,
		cmds:      make(chan Command, 8),
		snapshots: make(chan Snapshot, 1),
		searches:  make(chan searchResult),
		plays:     make(chan playResult),
	}
}

// Commands is where the shell sends user intents.
func (c *Controller) Commands() chan<- Command {
	return c.cmds
}

// Snapshots carries the latest applet state; stale snapshots are
// replaced, so a slow consumer only ever sees the newest one.
func (c *Controller) Snapshots() <-chan Snapshot {
	return c.snapshots
}

// Run owns the controller state until ShutdownCmd arrives or ctx is
// cancelled. It always tears the supervisor down before returning.
func (c *Controller) Run(ctx context.Context) {
	sub := c.sup.Subscribe()

	c.snap.Volume = c.sup.Volume()
	c.loadRecents()
	c.loadFavorites()
	c.publish()

	for {
		select {
		case cmd := <-c.cmds:
			if c.handle(ctx, cmd) {
				return
			}

		case res := <-c.searches:
			c.applySearch(res)

		case res := <-c.plays:
			c.applyPlay(ctx, res)

		case e := <-sub.StatusChanged:
			c.snap.Phase = e.Current
			switch e.Current {
			case playback.StatusErrored:
				c.snap.ErrorText = e.Reason
			case playback.StatusStopped:
				c.current = nil
				c.snap.Station = ""
				c.snap.Title = ""
			}
			c.publish()

		case e := <-sub.TitleChanged:
			c.snap.Title = e.Title
			c.publish()

		case e := <-sub.VolumeChanged:
			c.snap.Volume = e.Volume
			if c.store != nil {
				_ = c.store.SaveVolume(e.Volume)
			}
			c.publish()

		case e := <-sub.Error:
			c.snap.ErrorText = errmsg.Format(errmsg.OpStartPlayback, e.Err)
			c.publish()

		case <-sub.Done:
			return

		case <-ctx.Done():
			_ = c.sup.Shutdown()
			return
		}
	}
}

// handle applies one command; the return value reports shutdown.
func (c *Controller) handle(ctx context.Context, cmd Command) bool {
	switch cmd := cmd.(type) {
	case SearchCmd:
		c.startSearch(ctx, cmd.Query)

	case PlayCmd:
		c.startPlay(ctx, cmd.UUID)

	case TogglePauseCmd:
		if err := c.sup.Toggle(); err != nil {
			c.snap.ErrorText = errmsg.Format(errmsg.OpPausePlayback, err)
			c.publish()
		}

	case StopCmd:
		if err := c.sup.Stop(); err != nil {
			c.snap.ErrorText = errmsg.Format(errmsg.OpStopPlayback, err)
			c.publish()
		}

	case SetVolumeCmd:
		if err := c.sup.SetVolume(cmd.Volume); err != nil {
			c.snap.ErrorText = errmsg.Format(errmsg.OpSetVolume, err)
			c.publish()
		}

	case NextCmd:
		if err := c.sup.Next(ctx); err != nil {
			c.snap.ErrorText = errmsg.Format(errmsg.OpNextStation, err)
			c.publish()
		}

	case ToggleFavoriteCmd:
		c.toggleFavorite(cmd.UUID)

	case ShutdownCmd:
		_ = c.sup.Shutdown()
		c.current = nil
		c.snap.Phase = playback.StatusStopped
		c.snap.Station = ""
		c.snap.Title = ""
		c.publish()
		return true
	}
	return false
}

func (c *Controller) startSearch(ctx context.Context, query string) {
	query = strings.TrimSpace(query)
	c.searchSeq++
	c.snap.Query = query
	c.snap.ErrorText = ""

	if query == "" {
		c.snap.Searching = false
		c.snap.Results = nil
		c.publish()
		return
	}

	c.snap.Searching = true
	c.publish()

	seq := c.searchSeq
	go func() {
		stations, err := c.disc.Search(ctx, query)
		c.searches <- searchResult{seq: seq, query: query, stations: stations, err: err}
	}()
}

func (c *Controller) applySearch(res searchResult) {
	if res.seq != c.searchSeq {
		// The query changed while this search was in flight.
		return
	}
	c.snap.Searching = false
	if res.err != nil {
		c.snap.Results = nil
		c.snap.ErrorText = errmsg.FormatWith(errmsg.OpSearchStations, res.query, res.err)
	} else {
		c.snap.Results = res.stations
	}
	c.publish()
}

func (c *Controller) startPlay(ctx context.Context, uuid string) {
	c.playSeq++
	c.snap.ErrorText = ""
	c.publish()

	known := c.findStation(uuid)

	seq := c.playSeq
	go func() {
		st := known
		if st == nil {
			resolved, err := c.disc.Resolve(ctx, uuid)
			if err != nil {
				c.plays <- playResult{seq: seq, err: err}
				return
			}
			st = resolved
		}
		// The click endpoint registers the play with the directory and
		// hands back the stream URL; fall back to the known one.
		url, err := c.disc.PlayableURL(ctx, uuid)
		if err != nil {
			url = st.StreamURL
		}
		c.plays <- playResult{seq: seq, station: *st, url: url}
	}()
}

// findStation looks the UUID up in the current results, favorites and
// recents before paying for a remote resolve.
func (c *Controller) findStation(uuid string) *radiobrowser.Station {
	for i := range c.snap.Results {
		if c.snap.Results[i].ID == uuid {
			st := c.snap.Results[i]
			return &st
		}
	}
	for _, f := range c.snap.Favorites {
		if f.UUID == uuid {
			return &radiobrowser.Station{
				ID:        f.UUID,
				Name:      f.Name,
				StreamURL: f.StreamURL,
				Codec:     f.Codec,
				Bitrate:   f.Bitrate,
				Country:   f.Country,
			}
		}
	}
	for _, r := range c.snap.Recents {
		if r.UUID == uuid {
			return &radiobrowser.Station{
				ID:        r.UUID,
				Name:      r.Name,
				StreamURL: r.StreamURL,
				Codec:     r.Codec,
				Bitrate:   r.Bitrate,
				Country:   r.Country,
			}
		}
	}
	return nil
}

// toggleFavorite flips the favorite state of a station the controller
// already knows about. An empty UUID targets the playing station.
func (c *Controller) toggleFavorite(uuid string) {
	var st *radiobrowser.Station
	if uuid == "" || (c.current != nil && c.current.ID == uuid) {
		st = c.current
	} else {
		st = c.findStation(uuid)
	}
	if st == nil {
		c.snap.ErrorText = errmsg.Format(errmsg.OpToggleFavorite, errUnknownStation)
		c.publish()
		return
	}
	if c.store == nil {
		return
	}

	_, err := c.store.ToggleFavorite(state.FavoriteStation{
		UUID:      st.ID,
		Name:      st.Name,
		StreamURL: st.StreamURL,
		Codec:     st.Codec,
		Bitrate:   st.Bitrate,
		Country:   st.Country,
	})
	if err != nil {
		c.snap.ErrorText = errmsg.FormatWith(errmsg.OpToggleFavorite, st.Name, err)
		c.publish()
		return
	}
	c.loadFavorites()
	c.publish()
}

func (c *Controller) applyPlay(ctx context.Context, res playResult) {
	if res.seq != c.playSeq {
		return
	}
	if res.err != nil {
		c.snap.ErrorText = errmsg.Format(errmsg.OpResolveStation, res.err)
		c.publish()
		return
	}

	st := res.station
	if err := c.sup.Play(ctx, playback.Stream{Name: st.Name, URL: res.url}); err != nil {
		c.snap.ErrorText = errmsg.FormatWith(errmsg.OpStartPlayback, st.Name, err)
		c.publish()
		return
	}

	c.current = &st
	c.snap.Station = st.Name
	c.snap.ErrorText = ""
	c.queueNext(st.ID)

	if c.store != nil {
		_ = c.store.SaveRecent(state.RecentStation{
			UUID:      st.ID,
			Name:      st.Name,
			StreamURL: res.url,
			Codec:     st.Codec,
			Bitrate:   st.Bitrate,
			Country:   st.Country,
		})
		if host := c.disc.LastMirror(); host != "" {
			_ = c.store.SaveLastMirror(host)
		}
		c.loadRecents()
	}
	c.publish()
}

// queueNext hands the supervisor the station after the current one in
// the result list, so Next works from the panel and MPRIS.
func (c *Controller) queueNext(currentUUID string) {
	for i := range c.snap.Results {
		if c.snap.Results[i].ID == currentUUID && i+1 < len(c.snap.Results) {
			nxt := c.snap.Results[i+1]
			c.sup.QueueNext(playback.Stream{Name: nxt.Name, URL: nxt.StreamURL})
			return
		}
	}
}

func (c *Controller) loadRecents() {
	if c.store == nil {
		return
	}
	if recents, err := c.store.RecentStations(recentsShown); err == nil {
		c.snap.Recents = recents
	}
}

func (c *Controller) loadFavorites() {
	if c.store == nil {
		return
	}
	if favs, err := c.store.FavoriteStations(); err == nil {
		c.snap.Favorites = favs
	}
}

// publish replaces whatever snapshot the listener has not read yet.
func (c *Controller) publish() {
	snap := c.snap
	for {
		select {
		case c.snapshots <- snap:
			return
		default:
			select {
			case <-c.snapshots:
			default:
			}
		}
	}
}
