package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/config"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/roomview"
	"github.com/tOgg1/roomview/internal/tui"
)

var errNoTTY = errors.New("roomview needs an interactive terminal; use the import, tiles or search commands instead")

func runTUI(cmd *cobra.Command, opts *globalOptions, roomFlag string) error {
	if !hasTTY() {
		return errNoTTY
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := openRuntime(ctx, opts, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	contexts := config.NewContextStore("")
	last, err := contexts.Load()
	if err != nil {
		rt.log.Warn().Err(err).Msg("ignoring unreadable context file")
		last = &config.Context{}
	}

	raw := roomFlag
	if raw == "" {
		raw = last.RoomID.String()
	}
	roomID, err := parseRoom(raw)
	if err != nil {
		return usageError(cmd, "no room given and none remembered: pass --room")
	}

	rooms := []id.RoomID{roomID}
	if known, err := rt.client.Rooms(ctx); err != nil {
		rt.log.Warn().Err(err).Msg("failed to list rooms")
	} else {
		rooms = make([]id.RoomID, 0, len(known)+1)
		for _, room := range known {
			rooms = append(rooms, room.ID)
		}
		if !containsRoom(rooms, roomID) {
			rooms = append([]id.RoomID{roomID}, rooms...)
		}
	}

	loc, err := rt.cfg.Location()
	if err != nil {
		return err
	}
	viewLog := logging.Component("roomview")
	view := roomview.New(rt.client, roomview.Options{
		PageSize:      rt.cfg.Timeline.PageSize,
		InitialWindow: rt.cfg.Timeline.InitialWindow,
		Location:      loc,
		Logger:        &viewLog,
	})

	remember := func(roomID id.RoomID) {
		last.SetRoom(roomID, rt.client.RoomName(roomID))
		if err := contexts.Save(last); err != nil {
			rt.log.Warn().Err(err).Msg("failed to save context")
		}
	}
	remember(roomID)

	stopSync := rt.startSync(ctx)
	defer stopSync()

	rt.log.Info().Str("room_id", roomID.String()).Int("rooms", len(rooms)).Msg("starting tui")
	return tui.Run(view, tui.Config{
		Theme:          rt.cfg.TUI.Theme,
		ShowTimestamps: rt.cfg.TUI.ShowTimestamps,
		RoomID:         roomID,
		Rooms:          rooms,
		RoomName:       rt.client.RoomName,
		OnRoomChange:   remember,
	})
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func containsRoom(rooms []id.RoomID, roomID id.RoomID) bool {
	for _, room := range rooms {
		if room == roomID {
			return true
		}
	}
	return false
}

func usageError(cmd *cobra.Command, msg string) error {
	return errors.New(msg + "\n\n" + cmd.UsageString())
}
