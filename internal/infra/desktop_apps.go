package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-ini/ini"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

const (
	desktopSection  = "Desktop Entry"
	desktopSuffix   = ".desktop"
	defaultIconName = "application-x-executable"
)

// DesktopEnumerator implements domain.AppEnumerator over XDG desktop entries.
// The package id of an app is its desktop file id, e.g. "org.gnome.Calculator".
type DesktopEnumerator struct {
	dirs   []string
	locale string
	logger *zap.Logger

	mu    sync.Mutex
	index map[string]string    // desktop id -> file path
	cache map[string]*ini.File // parsed entries, reset on ListInstalled
}

// NewDesktopEnumerator searches the XDG application directories of the current user.
func NewDesktopEnumerator(logger *zap.Logger) *DesktopEnumerator {
	return NewDesktopEnumeratorWithDirs(xdgApplicationDirs(), os.Getenv("LANG"), logger)
}

// NewDesktopEnumeratorWithDirs searches dirs in priority order (for testing).
func NewDesktopEnumeratorWithDirs(dirs []string, locale string, logger *zap.Logger) *DesktopEnumerator {
	return &DesktopEnumerator{
		dirs:   dirs,
		locale: locale,
		logger: logger,
	}
}

// xdgApplicationDirs returns $XDG_DATA_HOME/applications followed by
// $XDG_DATA_DIRS/*/applications, with the XDG defaults when unset.
func xdgApplicationDirs() []string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(GetRealUserHome(), ".local", "share")
	}
	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}

	dirs := []string{filepath.Join(dataHome, "applications")}
	for _, d := range strings.Split(dataDirs, ":") {
		if d != "" {
			dirs = append(dirs, filepath.Join(d, "applications"))
		}
	}
	return dirs
}

// ListInstalled returns one entry per desktop id. An id found in an earlier
// directory shadows the same id in later ones.
func (e *DesktopEnumerator) ListInstalled(ctx context.Context) ([]domain.InstalledApp, error) {
	index := make(map[string]string)
	var apps []domain.InstalledApp
	var searched int

	for _, dir := range e.dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		searched++

		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				e.logger.Debug("skipping unreadable path", zap.String("path", path), zap.Error(err))
				return nil
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), desktopSuffix) {
				return nil
			}
			id, ok := desktopID(dir, path)
			if !ok {
				return nil
			}
			if _, seen := index[id]; seen {
				return nil
			}
			index[id] = path
			apps = append(apps, domain.InstalledApp{PackageID: id, Source: path})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
	}

	if searched == 0 {
		return nil, fmt.Errorf("no application directories found in %v", e.dirs)
	}

	e.mu.Lock()
	e.index = index
	e.cache = make(map[string]*ini.File)
	e.mu.Unlock()

	return apps, nil
}

// desktopID derives the desktop file id: the path relative to the
// applications dir with "/" replaced by "-" and the suffix removed.
func desktopID(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), desktopSuffix)
	if rel == "" {
		return "", false
	}
	return strings.ReplaceAll(rel, "/", "-"), true
}

// HasLauncherEntry reports whether pkg is an application a user can start:
// Type=Application with an Exec line that is neither NoDisplay nor Hidden.
// Entries that fail to parse are kept so LoadLabel can report the error.
func (e *DesktopEnumerator) HasLauncherEntry(pkg string) bool {
	f, err := e.entry(pkg)
	if err != nil {
		return !errors.Is(err, domain.ErrNotFound)
	}
	sec, err := f.GetSection(desktopSection)
	if err != nil {
		return true
	}
	if sec.Key("Type").String() != "Application" {
		return false
	}
	if strings.TrimSpace(sec.Key("Exec").String()) == "" {
		return false
	}
	return !sec.Key("NoDisplay").MustBool(false) && !sec.Key("Hidden").MustBool(false)
}

// LoadLabel returns the localized Name of pkg.
func (e *DesktopEnumerator) LoadLabel(pkg string) (string, error) {
	sec, err := e.section(pkg)
	if err != nil {
		return "", err
	}
	for _, key := range localizedKeys("Name", e.locale) {
		if sec.HasKey(key) {
			if name := strings.TrimSpace(sec.Key(key).String()); name != "" {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("desktop entry %s has no Name", pkg)
}

// LoadIcon returns the Icon key (theme name or absolute path).
func (e *DesktopEnumerator) LoadIcon(pkg string) (domain.Icon, error) {
	sec, err := e.section(pkg)
	if err != nil {
		return "", err
	}
	icon := strings.TrimSpace(sec.Key("Icon").String())
	if icon == "" {
		return defaultIconName, nil
	}
	return domain.Icon(icon), nil
}

func (e *DesktopEnumerator) section(pkg string) (*ini.Section, error) {
	f, err := e.entry(pkg)
	if err != nil {
		return nil, err
	}
	sec, err := f.GetSection(desktopSection)
	if err != nil {
		return nil, fmt.Errorf("desktop entry %s: %w", pkg, err)
	}
	return sec, nil
}

// entry returns the parsed desktop file for pkg, parsing at most once per listing.
func (e *DesktopEnumerator) entry(pkg string) (*ini.File, error) {
	e.mu.Lock()
	indexed := e.index != nil
	e.mu.Unlock()
	if !indexed {
		if _, err := e.ListInstalled(context.Background()); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if f, ok := e.cache[pkg]; ok {
		return f, nil
	}
	path, ok := e.index[pkg]
	if !ok {
		return nil, fmt.Errorf("desktop entry %s: %w", pkg, domain.ErrNotFound)
	}

	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
		KeyValueDelimiters:  "=",
	}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	e.cache[pkg] = f
	return f, nil
}

// localizedKeys returns key lookups in preference order for a POSIX locale
// such as "de_DE.UTF-8@euro": Name[de_DE@euro], Name[de_DE], Name[de@euro], Name[de], Name.
func localizedKeys(key, locale string) []string {
	if i := strings.IndexByte(locale, '.'); i >= 0 {
		rest := locale[i:]
		locale = locale[:i]
		if j := strings.IndexByte(rest, '@'); j >= 0 {
			locale += rest[j:]
		}
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return []string{key}
	}

	lang, modifier := locale, ""
	if i := strings.IndexByte(lang, '@'); i >= 0 {
		lang, modifier = lang[:i], lang[i:]
	}
	short := lang
	if i := strings.IndexByte(short, '_'); i >= 0 {
		short = short[:i]
	}

	var keys []string
	add := func(loc string) {
		k := key + "[" + loc + "]"
		for _, existing := range keys {
			if existing == k {
				return
			}
		}
		keys = append(keys, k)
	}
	if modifier != "" {
		add(lang + modifier)
	}
	add(lang)
	if modifier != "" {
		add(short + modifier)
	}
	add(short)
	return append(keys, key)
}

// Ensure DesktopEnumerator implements domain.AppEnumerator.
var _ domain.AppEnumerator = (*DesktopEnumerator)(nil)
