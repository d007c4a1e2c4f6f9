package definition

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Repository supplies the definition set of a cycle.
type Repository interface {
	Load(ctx context.Context) (*Set, error)
}

// rawDefinition is the on-disk YAML shape shared by both kinds.
type rawDefinition struct {
	Kind         string   `yaml:"kind"`
	Name         string   `yaml:"name"`
	Schedule     string   `yaml:"schedule"`
	Type         string   `yaml:"type"`
	Template     string   `yaml:"template"`
	Sheet        string   `yaml:"sheet"`
	FileType     string   `yaml:"file_type"`
	Separator    string   `yaml:"separator"`
	FirstRow     int      `yaml:"first_row"`
	FromTemplate *bool    `yaml:"from_template"`
	Recipients   []string `yaml:"recipients"`
	BlindCopy    []string `yaml:"blind_copy"`
	FillPolicy   string   `yaml:"fill_policy"`
	Subject      string   `yaml:"subject"`
	Content      string   `yaml:"content"`
	Email        string   `yaml:"email"`
	Reports      []string `yaml:"reports"`
}

// FileSystemRepository reads one definition per *.yaml file in a directory.
// Every Load re-reads the directory so edits apply on the next cycle.
type FileSystemRepository struct {
	dir string
}

func NewFileSystemRepository(dir string) *FileSystemRepository {
	return &FileSystemRepository{dir: dir}
}

// Load reads and validates every definition. Any invalid file fails the whole set.
func (r *FileSystemRepository) Load(ctx context.Context) (*Set, error) {
	set := &Set{}

	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return set, nil // no definitions directory, nothing scheduled
	}
	if err != nil {
		return nil, fmt.Errorf("definitions dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("definitions path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions dir: %w", err)
	}

	seen := make(map[string]string)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading definition file %s: %w", path, err)
		}

		var raw rawDefinition
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing definition file %s: %w", path, err)
		}
		if raw.Name == "" {
			continue // skip empty / comment-only files
		}

		key := strings.ToLower(raw.Kind) + "/" + raw.Name
		if prev, exists := seen[key]; exists {
			return nil, fmt.Errorf("%s %q: duplicate name (also in %s)", raw.Kind, raw.Name, prev)
		}
		seen[key] = path

		fingerprint := fmt.Sprintf("%x", sha256.Sum256(data))

		switch EntityKind(strings.ToLower(raw.Kind)) {
		case KindReport:
			rep, err := raw.report(r.dir)
			if err != nil {
				return nil, err
			}
			rep.Fingerprint = fingerprint
			set.Reports = append(set.Reports, rep)
		case KindUser:
			u, err := raw.user()
			if err != nil {
				return nil, err
			}
			u.Fingerprint = fingerprint
			set.Users = append(set.Users, u)
		default:
			return nil, fmt.Errorf("definition %q in %s: unsupported kind %q (report, user)", raw.Name, path, raw.Kind)
		}
	}

	sort.Slice(set.Reports, func(i, j int) bool { return set.Reports[i].Name < set.Reports[j].Name })
	sort.Slice(set.Users, func(i, j int) bool { return set.Users[i].Name < set.Users[j].Name })
	return set, nil
}

func (raw rawDefinition) report(dir string) (Report, error) {
	schedule, err := ParseSchedule(raw.Schedule)
	if err != nil {
		return Report{}, fmt.Errorf("report %q: %w", raw.Name, err)
	}

	typ := ReportType(raw.Type)
	if !validReportType(typ) {
		return Report{}, fmt.Errorf("report %q: unsupported type %q", raw.Name, raw.Type)
	}

	if raw.Template == "" {
		return Report{}, fmt.Errorf("report %q: template must not be empty", raw.Name)
	}
	template := raw.Template
	if !filepath.IsAbs(template) {
		template = filepath.Join(dir, template)
	}

	fileType := FileType(strings.ToLower(raw.FileType))
	if fileType == "" {
		fileType = FileType(strings.TrimPrefix(strings.ToLower(filepath.Ext(template)), "."))
	}
	switch fileType {
	case FileCSV, FileXLSX, FileXLS:
	default:
		return Report{}, fmt.Errorf("report %q: unsupported file_type %q (csv, xlsx, xls)", raw.Name, fileType)
	}

	if fileType.IsSpreadsheet() && raw.Sheet == "" {
		return Report{}, fmt.Errorf("report %q: sheet must be set for %s output", raw.Name, fileType)
	}
	if raw.FirstRow < 0 {
		return Report{}, fmt.Errorf("report %q: first_row must be >= 0", raw.Name)
	}

	separator := raw.Separator
	if separator == "" {
		separator = ","
	}
	if len([]rune(separator)) != 1 {
		return Report{}, fmt.Errorf("report %q: separator must be a single character", raw.Name)
	}

	fromTemplate := true
	if raw.FromTemplate != nil {
		fromTemplate = *raw.FromTemplate
	}

	return Report{
		Name:         raw.Name,
		Schedule:     schedule,
		Type:         typ,
		Template:     template,
		Sheet:        raw.Sheet,
		FileType:     fileType,
		Separator:    separator,
		FirstRow:     raw.FirstRow,
		FromTemplate: fromTemplate,
		Recipients:   raw.Recipients,
		BlindCopy:    raw.BlindCopy,
		FillPolicy:   raw.FillPolicy,
		Subject:      raw.Subject,
		Content:      raw.Content,
	}, nil
}

func (raw rawDefinition) user() (User, error) {
	schedule, err := ParseSchedule(raw.Schedule)
	if err != nil {
		return User{}, fmt.Errorf("user %q: %w", raw.Name, err)
	}
	if raw.Email == "" {
		return User{}, fmt.Errorf("user %q: email must not be empty", raw.Name)
	}
	if len(raw.Reports) == 0 {
		return User{}, fmt.Errorf("user %q: reports must not be empty", raw.Name)
	}
	return User{
		Name:      raw.Name,
		Email:     raw.Email,
		Reports:   raw.Reports,
		BlindCopy: raw.BlindCopy,
		Schedule:  schedule,
		Subject:   raw.Subject,
		Content:   raw.Content,
	}, nil
}
