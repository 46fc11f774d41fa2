package client

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// NewWatchCommand constructs `watch`, which fetches a list and then prints
// every frame broadcast on its room.
func NewWatchCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream a list's updates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := tokenFrom(cmd)
			if err != nil {
				return err
			}
			listID, _ := cmd.Flags().GetString("list")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			w, err := dialFunc(ctx, baseURL(), tok, listID)
			if err != nil {
				return err
			}
			defer w.Close()
			stop := context.AfterFunc(ctx, func() { _ = w.Close() })
			defer stop()

			fetch := map[string]any{"listId": listID, "commandId": uuid.NewString()}
			if filter != "" {
				fetch["filter"] = filter
			}
			if err := w.Send("fetch_list", fetch); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for n := 0; limit == 0 || n < limit; n++ {
				f, err := w.Next()
				if err != nil {
					if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					return err
				}
				_ = enc.Encode(f)
			}
			return nil
		},
	}
	cmd.Flags().String("list", "", "List id")
	cmd.Flags().String("filter", "", "CEL filter applied to the initial fetch")
	cmd.Flags().Int("limit", 0, "Stop after N frames (0 = infinite)")
	addTokenFlag(cmd)
	return cmd
}
