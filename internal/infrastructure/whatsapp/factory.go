package whatsapp

import (
	"context"
	"os"
	"path/filepath"

	"whatsam/internal/domain/errors"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"

	"go.mau.fi/whatsmeow"
	waCompanionReg "go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite" // SQLite driver for the whatsmeow store
)

const credsFileName = "creds.db"

// Factory builds protocol clients backed by whatsmeow. Each session gets
// its own SQLite credential store inside its auth directory, which keeps
// the auth material file-shaped for the auth state store to mirror.
type Factory struct {
	cfg   config.WhatsAppConfig
	log   logger.Logger
	waLog waLog.Logger
}

var _ repository.ProtocolFactory = (*Factory)(nil)

// NewFactory creates the protocol client factory.
func NewFactory(cfg *config.Config, log logger.Logger) *Factory {
	// Device properties shown as the linked device name in WhatsApp
	store.DeviceProps.Os = proto.String("Whatsam Worker")
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_DESKTOP.Enum()

	return &Factory{
		cfg:   cfg.WhatsApp,
		log:   log.WithComponent("protocol"),
		waLog: newWALogger(log),
	}
}

// New opens (or creates) the session's credential store and builds a
// client around it. One client per connection attempt; restarts create a
// fresh one over the same store.
func (f *Factory) New(ctx context.Context, sessionID, authDir string) (repository.ProtocolClient, error) {
	dsn := "file:" + filepath.Join(authDir, credsFileName) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	container, err := sqlstore.New(ctx, "sqlite", dsn, f.waLog)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err).WithMessage("failed to open credential store")
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err).WithMessage("failed to load device")
	}

	wa := whatsmeow.NewClient(device, f.waLog)
	// The engine owns reconnect policy; the library must not race it.
	wa.EnableAutoReconnect = false

	return newClient(sessionID, wa, f.cfg, f.log.WithSessionID(sessionID)), nil
}

// Healthy reports whether the protocol service is usable: the session
// root must be present and writable.
func (f *Factory) Healthy(ctx context.Context) bool {
	if err := os.MkdirAll(f.cfg.SessionPath, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(f.cfg.SessionPath, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}
