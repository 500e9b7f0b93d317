package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/jlaffaye/ftp"
)

// FTPSource implements Source over plain FTP. Each operation opens a fresh
// session; the drop server drops idle control connections aggressively, so
// holding one across a long pipeline cycle is not worth it.
type FTPSource struct {
	config *Config
	logger *slog.Logger
}

// Compile-time interface check.
var _ Source = (*FTPSource)(nil)

// NewFTPSource creates an FTP-backed source from validated configuration.
func NewFTPSource(config *Config, logger *slog.Logger) (*FTPSource, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid FTP configuration: %w", err)
	}

	return &FTPSource{config: config, logger: logger}, nil
}

// List returns the names of drop files matching the configured pattern.
func (s *FTPSource) List(ctx context.Context) ([]string, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.quit(conn)

	entries, err := conn.NameList(".")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.remoteDirForLog(), err)
	}

	matches := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := path.Base(strings.TrimSpace(entry))
		if name == "" || name == "." {
			continue
		}

		if ok, _ := path.Match(s.config.Pattern, name); ok {
			matches = append(matches, name)
		}
	}

	// Deterministic processing order regardless of server listing order.
	sort.Strings(matches)

	s.logger.Info("Listed batch file drop",
		slog.String("remote_dir", s.remoteDirForLog()),
		slog.String("pattern", s.config.Pattern),
		slog.Int("matches", len(matches)))

	return matches, nil
}

// Fetch reads a remote file's full contents.
func (s *FTPSource) Fetch(ctx context.Context, filename string) ([]byte, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.quit(conn)

	resp, err := conn.Retr(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", filename, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	s.logger.Info("Fetched batch file",
		slog.String("filename", filename),
		slog.Int("bytes", len(data)))

	return data, nil
}

// Delete removes the remote file from the drop.
func (s *FTPSource) Delete(ctx context.Context, filename string) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer s.quit(conn)

	if err := conn.Delete(filename); err != nil {
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}

	s.logger.Info("Deleted source batch file", slog.String("filename", filename))

	return nil
}

// connect dials, logs in and changes into the drop directory.
func (s *FTPSource) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(s.config.Addr(),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.config.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.config.Addr(), err)
	}

	if err := conn.Login(s.config.Username, s.config.Password); err != nil {
		s.quit(conn)

		return nil, fmt.Errorf("FTP login failed for %s: %w", s.config.Username, err)
	}

	if s.config.RemoteDir != "" {
		if err := conn.ChangeDir(s.config.RemoteDir); err != nil {
			s.quit(conn)

			return nil, fmt.Errorf("failed to enter %s: %w", s.config.RemoteDir, err)
		}
	}

	return conn, nil
}

func (s *FTPSource) quit(conn *ftp.ServerConn) {
	if err := conn.Quit(); err != nil {
		s.logger.Debug("FTP quit failed", slog.String("error", err.Error()))
	}
}

func (s *FTPSource) remoteDirForLog() string {
	if s.config.RemoteDir == "" {
		return "/"
	}

	return "/" + s.config.RemoteDir
}

// validPattern reports whether pattern is a well-formed glob.
func validPattern(pattern string) bool {
	if strings.TrimSpace(pattern) == "" {
		return false
	}

	_, err := path.Match(pattern, "probe")

	return err == nil
}
