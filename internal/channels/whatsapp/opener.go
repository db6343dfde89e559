package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/numcheck/internal/session"
)

// DeviceDBName is the device database file inside a credential directory.
const DeviceDBName = "device.db"

// Opener creates whatsmeow-backed protocol clients.
type Opener struct {
	logLevel string
}

// NewOpener creates an opener. logLevel controls whatsmeow's own logging.
func NewOpener(logLevel string) *Opener {
	return &Opener{logLevel: logLevel}
}

var _ session.Opener = (*Opener)(nil)

// Open loads (or creates) the device stored in handle.Dir and returns an
// unconnected client.
func (o *Opener) Open(ctx context.Context, handle session.CredentialHandle) (session.ProtocolClient, error) {
	dbPath := filepath.Join(handle.Dir, DeviceDBName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open device db: %w", err)
	}

	log := newLogger("whatsmeow/"+handle.UserID, o.logLevel)
	container := sqlstore.NewWithDB(db, "sqlite", log.Sub("store"))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade device db: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, log.Sub("client"))
	wa.EnableAutoReconnect = false

	c := newClient(handle.UserID, wa, db)
	wa.AddEventHandler(c.handleEvent)

	slog.Info("whatsapp.opened", "user", handle.UserID, "paired", device.ID != nil, "path", dbPath)
	return c, nil
}
