package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	browserlessPort = "3000/tcp"
	containerData   = "/data"
)

var containerNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Pool launches one browserless container per session with the session's
// partition directory bind-mounted as the Chrome profile
type Pool struct {
	client *client.Client
	image  string
	http   *http.Client
	logger *zap.Logger
}

var _ Launcher = (*Pool)(nil)

// NewPool connects to the docker daemon from the environment
func NewPool(imageRef string, logger *zap.Logger) (*Pool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if imageRef == "" {
		imageRef = "browserless/chrome:latest"
	}

	return &Pool{
		client: cli,
		image:  imageRef,
		http:   &http.Client{Timeout: 2 * time.Second},
		logger: logger,
	}, nil
}

// Launch starts a container, waits for its DevTools endpoint and opens a tab
// over a remote allocator
func (p *Pool) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	if opts.UserDataDir == "" {
		return nil, fmt.Errorf("docker backend requires a partition directory")
	}

	containerConfig := &container.Config{
		Image: p.image,
		Labels: map[string]string{
			"context-key": opts.ContextKey,
			"managed-by":  "hypercart",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",        // Disable connection timeout
			"MAX_CONCURRENT_SESSIONS=1",    // One context per container
			"PREBOOT_CHROME=true",          // Pre-boot Chrome for faster startup
			"KEEP_ALIVE=true",              // Keep connections alive
			"EXIT_ON_HEALTH_FAILURE=false", // Don't exit on health check failures
		},
		ExposedPorts: nat.PortSet{
			browserlessPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			browserlessPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: opts.UserDataDir,
				Target: containerData,
			},
		},
	}

	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName(opts.ContextKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	release := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return p.StopBrowser(stopCtx, resp.ID)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = release()
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports[browserlessPort]
	if len(bindings) == 0 {
		_ = release()
		return nil, fmt.Errorf("container %s exposes no DevTools port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if err := p.waitForBrowserReady(ctx, port); err != nil {
		_ = release()
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	connectURL := ConnectURL(port, opts)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), connectURL, chromedp.NoModifyURL)

	t, err := openTab(allocCtx, opts, func() error {
		allocCancel()
		return release()
	}, p.logger)
	if err != nil {
		return nil, err
	}
	t.connectURL = connectURL

	p.logger.Info("✓ Browser container ready",
		zap.String("context_id", opts.ContextKey),
		zap.String("container", resp.ID[:12]),
		zap.String("port", port))
	return t, nil
}

// ConnectURL builds the browserless websocket URL carrying Chrome's launch
// flags for one context
func ConnectURL(port string, opts LaunchOptions) string {
	q := url.Values{}
	q.Set("--user-data-dir", containerData)
	if opts.Proxy != "" {
		q.Set("--proxy-server", opts.Proxy)
	}
	if opts.Bounds.Width > 0 && opts.Bounds.Height > 0 {
		q.Set("--window-size", fmt.Sprintf("%d,%d", opts.Bounds.Width, opts.Bounds.Height))
	}
	return fmt.Sprintf("ws://localhost:%s?%s", port, q.Encode())
}

func containerName(key string) string {
	return fmt.Sprintf("hypercart-%s-%s", containerNameChars.ReplaceAllString(key, "_"), uuid.New().String()[:8])
}

// StopBrowser stops and removes a container
func (p *Pool) StopBrowser(ctx context.Context, containerID string) error {
	timeout := 10
	stopOptions := container.StopOptions{
		Timeout: &timeout,
	}

	if err := p.client.ContainerStop(ctx, containerID, stopOptions); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// EnsureImage pulls the browser image when it is not present locally
func (p *Pool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.image {
				return nil
			}
		}
	}

	p.logger.Info("Pulling browser image", zap.String("image", p.image))
	reader, err := p.client.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the docker client
func (p *Pool) Close() error {
	return p.client.Close()
}

// waitForBrowserReady polls the /json/version endpoint until it answers
func (p *Pool) waitForBrowserReady(ctx context.Context, port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/json/version", port)
	maxRetries := 20 // 10 seconds total (20 * 500ms)

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := p.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}
