package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/zulandar/drydock/internal/config"
	"github.com/zulandar/drydock/internal/models"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

// manifest is one challenge definition file in the catalog repo.
type manifest struct {
	Name           string            `yaml:"name"`
	Type           string            `yaml:"type"`
	Image          string            `yaml:"image"`
	Port           int               `yaml:"port"`
	Command        string            `yaml:"command"`
	Volumes        map[string]string `yaml:"volumes"`
	ConnectionInfo string            `yaml:"connection_info"`
	Initial        int               `yaml:"initial"`
	Minimum        int               `yaml:"minimum"`
	Decay          int               `yaml:"decay"`
}

// contentsClient abstracts the go-github contents API for test mocks.
type contentsClient interface {
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
}

// Importer syncs challenge manifests from a GitHub repo into the catalog.
type Importer struct {
	gh      contentsClient
	catalog *Catalog
	owner   string
	repo    string
	ref     string
	dir     string
	log     *log.Logger
}

// NewImporter builds an Importer from catalog configuration. A token enables
// private repos via an oauth2 static token source.
func NewImporter(cfg config.CatalogConfig, cat *Catalog, logger *log.Logger) *Importer {
	var hc *http.Client
	if cfg.Token != "" {
		hc = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.Token},
		))
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Importer{
		gh:      github.NewClient(hc).Repositories,
		catalog: cat,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		ref:     cfg.Ref,
		dir:     cfg.Dir,
		log:     logger,
	}
}

// Sync lists the catalog directory and upserts every YAML manifest found.
// A bad manifest is logged and skipped; the count of imported challenges is
// returned.
func (i *Importer) Sync(ctx context.Context) (int, error) {
	if i.owner == "" || i.repo == "" {
		return 0, fmt.Errorf("challenge: catalog repo not configured")
	}

	opts := &github.RepositoryContentGetOptions{Ref: i.ref}
	_, entries, _, err := i.gh.GetContents(ctx, i.owner, i.repo, i.dir, opts)
	if err != nil {
		return 0, fmt.Errorf("challenge: list %s/%s/%s: %w", i.owner, i.repo, i.dir, err)
	}

	imported := 0
	for _, entry := range entries {
		name := entry.GetName()
		if entry.GetType() != "file" || !isYAML(name) {
			continue
		}
		file, _, _, err := i.gh.GetContents(ctx, i.owner, i.repo, entry.GetPath(), opts)
		if err != nil {
			i.log.Printf("challenge: fetch %s: %v", entry.GetPath(), err)
			continue
		}
		raw, err := file.GetContent()
		if err != nil {
			i.log.Printf("challenge: decode %s: %v", entry.GetPath(), err)
			continue
		}
		ch, err := parseManifest([]byte(raw))
		if err != nil {
			i.log.Printf("challenge: parse %s: %v", entry.GetPath(), err)
			continue
		}
		if err := i.catalog.Upsert(ch); err != nil {
			i.log.Printf("challenge: upsert %s: %v", ch.Name, err)
			continue
		}
		imported++
	}
	return imported, nil
}

// parseManifest decodes a YAML manifest into a Challenge row.
func parseManifest(data []byte) (*models.Challenge, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest has no name")
	}
	if m.Image == "" {
		return nil, fmt.Errorf("manifest %q has no image", m.Name)
	}
	if m.Port <= 0 || m.Port > 65535 {
		return nil, fmt.Errorf("manifest %q port %d out of range", m.Name, m.Port)
	}
	if m.Type == "" {
		m.Type = "container"
	}
	volumes := ""
	if len(m.Volumes) > 0 {
		b, err := json.Marshal(m.Volumes)
		if err != nil {
			return nil, fmt.Errorf("marshal volumes: %w", err)
		}
		volumes = string(b)
	}
	return &models.Challenge{
		Name:           m.Name,
		Type:           m.Type,
		Image:          m.Image,
		Port:           m.Port,
		Command:        m.Command,
		Volumes:        volumes,
		ConnectionInfo: m.ConnectionInfo,
		Initial:        m.Initial,
		Minimum:        m.Minimum,
		Decay:          m.Decay,
	}, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
