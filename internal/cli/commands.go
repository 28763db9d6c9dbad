package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/models"
	"github.com/tOgg1/roomview/internal/tiles"
)

const (
	maxBodyColumn = 60
	maxNameColumn = 32
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	var room string
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Load events into the history store",
		Long: `Load events, one JSON event per line, into the history store. Events
without a room_id are assigned --room. Reads stdin when no file (or "-") is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var defaultRoom id.RoomID
			if room != "" {
				parsed, err := parseRoom(room)
				if err != nil {
					return err
				}
				defaultRoom = parsed
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				in = f
			}

			rt, err := openRuntime(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			count, err := rt.client.ImportJSONL(cmd.Context(), in, defaultRoom)
			if err != nil {
				return fmt.Errorf("import stopped after %d events: %w", count, err)
			}
			rt.log.Info().Int("events", count).Msg("import finished")
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d events\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room for events without room_id")
	return cmd
}

func newTilesCmd(opts *globalOptions) *cobra.Command {
	var (
		room       string
		windowCap  int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "Print the tiles of a room's newest window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := parseRoom(room)
			if err != nil {
				return err
			}
			if windowCap < 1 {
				return fmt.Errorf("--cap must be at least 1")
			}

			rt, err := openRuntime(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			// Page history in until the window can be filled.
			tl := rt.client.Timeline(roomID)
			for tl.Len() < windowCap && tl.HasMoreHistory() {
				if err := rt.client.FetchOlderEvents(cmd.Context(), roomID, rt.cfg.Timeline.PageSize); err != nil {
					return err
				}
				tl = rt.client.Timeline(roomID)
			}

			loc, err := rt.cfg.Location()
			if err != nil {
				return err
			}
			reducer := tiles.Reducer{Location: loc}
			out := reducer.Reduce(tl, windowCap, userID(rt.cfg))
			log := logging.WithRoom("tiles", roomID)
			log.Debug().
				Int("events", tl.Len()).
				Int("tiles", len(out)).
				Msg("reduced window")
			if jsonOutput {
				return writeTilesJSON(cmd.OutOrStdout(), out)
			}
			return writeTilesTable(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room id")
	cmd.Flags().IntVar(&windowCap, "cap", 20, "maximum number of event tiles")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print tiles as JSON")
	return cmd
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		room       string
		scopeFlag  string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "search TERM",
		Short: "Search message bodies and print the result tiles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, ok := models.ParseSearchScope(scopeFlag)
			if !ok {
				return fmt.Errorf("invalid --scope %q (want room or all)", scopeFlag)
			}
			req := models.SearchRequest{Term: strings.Join(args, " "), Scope: scope}
			if scope == models.SearchScopeRoom {
				roomID, err := parseRoom(room)
				if err != nil {
					return fmt.Errorf("--room is required for room scope: %w", err)
				}
				req.RoomID = roomID
			}

			rt, err := openRuntime(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.client.Search(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			loc, err := rt.cfg.Location()
			if err != nil {
				return err
			}
			out := tiles.Reducer{Location: loc}.Search(res, userID(rt.cfg))
			if jsonOutput {
				return writeTilesJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d results for %q\n", res.Count, res.Term)
			return writeTilesTable(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room id (room scope)")
	cmd.Flags().StringVar(&scopeFlag, "scope", "room", "search scope: room|all")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print tiles as JSON")
	return cmd
}

func newRoomsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List known rooms and the local user's membership",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			rooms, err := rt.client.Rooms(cmd.Context())
			if err != nil {
				return err
			}
			own := userID(rt.cfg)
			tbl := newTable(column{title: "ROOM"}, column{title: "NAME", max: maxNameColumn}, column{title: "MEMBERSHIP"}, column{title: "INVITED BY"})
			for _, room := range rooms {
				info := rt.client.Member(room.ID, own)
				tbl.add(room.ID.String(), room.Name, string(info.Membership), info.InvitedBy.String())
			}
			return tbl.render(cmd.OutOrStdout())
		},
	}
}

func writeTilesTable(out io.Writer, list []models.Tile) error {
	tbl := newTable(
		column{title: "KIND"},
		column{title: "SENDER"},
		column{title: "TIME"},
		column{title: "FLAGS"},
		column{title: "BODY", max: maxBodyColumn},
	)
	for _, tile := range list {
		switch tile.Kind {
		case models.TileDateSeparator:
			tbl.add(string(tile.Kind), "", tile.Timestamp.Format("2006-01-02"))
		case models.TileRoomHeader:
			tbl.add(string(tile.Kind), "", "", "", tile.RoomName)
		default:
			ev := tile.Event
			tbl.add(string(tile.Kind), ev.Sender.String(), ev.Time().Format(time.DateTime), tileFlags(tile), ev.Body())
		}
	}
	return tbl.render(out)
}

func tileFlags(tile models.Tile) string {
	var flags []string
	if tile.Continuation {
		flags = append(flags, "cont")
	}
	if tile.IsLast {
		flags = append(flags, "last")
	}
	if tile.Own {
		flags = append(flags, "own")
	}
	if tile.Event != nil && tile.Event.SendStatus == models.SendStatusNotSent {
		flags = append(flags, "unsent")
	}
	return strings.Join(flags, ",")
}

type tileJSON struct {
	Kind         models.TileKind `json:"kind"`
	Key          string          `json:"key"`
	EventID      id.EventID      `json:"event_id,omitempty"`
	Sender       id.UserID       `json:"sender,omitempty"`
	Body         string          `json:"body,omitempty"`
	Timestamp    *time.Time      `json:"timestamp,omitempty"`
	RoomID       id.RoomID       `json:"room_id,omitempty"`
	RoomName     string          `json:"room_name,omitempty"`
	Continuation bool            `json:"continuation,omitempty"`
	IsLast       bool            `json:"is_last,omitempty"`
	Own          bool            `json:"own,omitempty"`
	Highlights   []string        `json:"highlights,omitempty"`
}

func writeTilesJSON(out io.Writer, list []models.Tile) error {
	payload := make([]tileJSON, 0, len(list))
	for _, tile := range list {
		item := tileJSON{
			Kind:         tile.Kind,
			Key:          tile.Key,
			RoomID:       tile.RoomID,
			RoomName:     tile.RoomName,
			Continuation: tile.Continuation,
			IsLast:       tile.IsLast,
			Own:          tile.Own,
			Highlights:   tile.Highlights,
		}
		if tile.Event != nil {
			item.EventID = tile.Event.ID
			item.Sender = tile.Event.Sender
			item.Body = tile.Event.Body()
		}
		if !tile.Timestamp.IsZero() {
			ts := tile.Timestamp
			item.Timestamp = &ts
		}
		payload = append(payload, item)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
