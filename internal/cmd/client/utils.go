package client

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	transports "github.com/rzbill/listsync/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// TokenEnv is read when --token is not given.
const TokenEnv = "LISTSYNC_TOKEN"

var errNoToken = errors.New("no token: pass --token or set " + TokenEnv)

func getTransport(baseURL BaseURLFunc) transports.API {
	return transports.NewHTTPTransport(baseURL())
}

// addTokenFlag registers --token on cmd.
func addTokenFlag(cmd *cobra.Command) {
	cmd.Flags().String("token", "", "Bearer token (default $"+TokenEnv+")")
}

// tokenFrom returns --token or $LISTSYNC_TOKEN.
func tokenFrom(cmd *cobra.Command) (string, error) {
	tok, _ := cmd.Flags().GetString("token")
	if tok == "" {
		tok = os.Getenv(TokenEnv)
	}
	if tok == "" {
		return "", errNoToken
	}
	return tok, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
