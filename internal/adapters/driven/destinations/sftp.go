package destinations

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Destination settings recognised by the SFTP adapter.
const (
	// SettingSFTPHost is the server host name.
	SettingSFTPHost = "host"

	// SettingSFTPPort is the server port. Empty means 22.
	SettingSFTPPort = "port"

	// SettingSFTPUser is the login name. The password comes from the
	// settings store.
	SettingSFTPUser = "user"

	// SettingSFTPKeyFile is an optional private key path used instead
	// of password authentication.
	SettingSFTPKeyFile = "key_file"

	// SettingSFTPRemoteDir roots deliveries in a directory on the
	// server. Empty means the login directory.
	SettingSFTPRemoteDir = "remote_dir"
)

const sftpDialTimeout = 30 * time.Second

// SFTPAdapter delivers documents over SFTP.
type SFTPAdapter struct{}

// NewSFTPAdapter creates a new SFTP adapter.
func NewSFTPAdapter() *SFTPAdapter {
	return &SFTPAdapter{}
}

// Provider returns the provider type this adapter serves.
func (a *SFTPAdapter) Provider() domain.ProviderType {
	return domain.ProviderSFTP
}

// Deliver uploads the document, creating remote directories as needed.
func (a *SFTPAdapter) Deliver(_ context.Context, req driven.DeliveryRequest) (*driven.DeliveryResult, error) {
	conn, client, err := a.connect(req.Target)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer client.Close()

	dir := req.Target.Destination.Setting(SettingSFTPRemoteDir)
	if req.Path != "" {
		if dir != "" {
			dir = dir + "/" + req.Path
		} else {
			dir = req.Path
		}
	}
	if dir != "" {
		if err := client.MkdirAll(dir); err != nil {
			return nil, classifySFTPErr(fmt.Errorf("creating %s: %w", dir, err))
		}
	}

	remotePath := req.Filename
	if dir != "" {
		remotePath = dir + "/" + req.Filename
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return nil, classifySFTPErr(fmt.Errorf("creating %s: %w", remotePath, err))
	}
	if _, err := io.Copy(f, req.Content); err != nil {
		f.Close()
		return nil, classifySFTPErr(fmt.Errorf("writing %s: %w", remotePath, err))
	}
	if err := f.Close(); err != nil {
		return nil, classifySFTPErr(fmt.Errorf("closing %s: %w", remotePath, err))
	}
	return &driven.DeliveryResult{RemoteRef: remotePath}, nil
}

// TestConnection verifies the server accepts the credentials.
func (a *SFTPAdapter) TestConnection(_ context.Context, target driven.Target) error {
	conn, client, err := a.connect(target)
	if err != nil {
		return err
	}
	client.Close()
	conn.Close()
	return nil
}

func (a *SFTPAdapter) connect(target driven.Target) (*ssh.Client, *sftp.Client, error) {
	dest := target.Destination
	host := dest.Setting(SettingSFTPHost)
	if host == "" {
		return nil, nil, domain.Classified(domain.ErrClassValidation,
			fmt.Errorf("destination %s has no host configured", dest.Name))
	}
	port := dest.Setting(SettingSFTPPort)
	if port == "" {
		port = "22"
	}

	auth, err := a.authMethods(target)
	if err != nil {
		return nil, nil, err
	}

	config := &ssh.ClientConfig{
		User: dest.Setting(SettingSFTPUser),
		Auth: auth,
		// Push targets are operator-configured hosts on trusted networks.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         sftpDialTimeout,
	}

	conn, err := ssh.Dial("tcp", net.JoinHostPort(host, port), config)
	if err != nil {
		return nil, nil, classifySFTPErr(fmt.Errorf("dialing %s: %w", host, err))
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, classifySFTPErr(fmt.Errorf("starting sftp session: %w", err))
	}
	return conn, client, nil
}

func (a *SFTPAdapter) authMethods(target driven.Target) ([]ssh.AuthMethod, error) {
	if keyFile := target.Destination.Setting(SettingSFTPKeyFile); keyFile != "" {
		pem, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, domain.Classified(domain.ErrClassValidation,
				fmt.Errorf("reading key file: %w", err))
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, domain.Classified(domain.ErrClassValidation,
				fmt.Errorf("parsing key file: %w", err))
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	password := target.Secrets[domain.KeySFTPPassword]
	if password == "" {
		return nil, domain.Classified(domain.ErrClassAuthExpired,
			fmt.Errorf("destination %s: %s is not configured", target.Destination.Name, domain.KeySFTPPassword))
	}
	return []ssh.AuthMethod{ssh.Password(password)}, nil
}

// classifySFTPErr maps SSH and SFTP failures onto the error taxonomy.
func classifySFTPErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "permission denied"):
		return domain.Classified(domain.ErrClassAuthExpired, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "connection reset"):
		return domain.Classified(domain.ErrClassTransient, err)
	default:
		class := classifyNetErr(err)
		if class == domain.ErrClassInternal {
			class = domain.ErrClassPermanent
		}
		return domain.Classified(class, err)
	}
}
