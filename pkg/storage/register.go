package storage

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/protocol"
)

// Register announces this storage server to the name server: a transient
// connection carrying REGISTER_SS with the advertised endpoint and a CSV
// of the files already present under the root. Files the catalog does not
// know are adopted there under the synthetic owner. Re-registration is
// idempotent on the endpoint.
func Register(ctx context.Context, nsAddr, advertiseIP string, advertisePort int, store *Store) error {
	files, err := store.List()
	if err != nil {
		return fmt.Errorf("listing root: %w", err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", nsAddr)
	if err != nil {
		return fmt.Errorf("dialing name server %s: %w", nsAddr, err)
	}
	defer conn.Close()

	err = protocol.WriteFrame(conn, protocol.VerbRegisterSS,
		advertiseIP, strconv.Itoa(advertisePort), strings.Join(files, ","))
	if err != nil {
		return fmt.Errorf("sending registration: %w", err)
	}

	reply, err := protocol.ReadUntilMarker(bufio.NewReader(conn), protocol.EndMarker)
	if err != nil {
		return fmt.Errorf("reading registration reply: %w", err)
	}
	if !strings.HasPrefix(reply, protocol.AckSSReg) {
		return fmt.Errorf("registration refused: %s", reply)
	}

	logger.Info("registered with name server",
		"nameserver", nsAddr,
		logger.Endpoint(fmt.Sprintf("%s:%d", advertiseIP, advertisePort)),
		"advertised_files", len(files))
	return nil
}
