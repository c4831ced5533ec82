package receipt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/oshokin/depstage/internal/config"
	"github.com/oshokin/depstage/internal/domain/staging"
)

// Repository defines persistence operations for staging receipts.
type Repository interface {
	Load(ctx context.Context) (*staging.Receipt, error)
	Save(ctx context.Context, receipt *staging.Receipt) error
}

// FileRepository persists the receipt to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the receipt.
	path string
	// mu serializes access to the file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when no receipt has been written yet.
	ErrNotFound = errors.New("receipt not found")
	// errNilReceipt is returned when Save is called without a receipt.
	errNilReceipt = errors.New("receipt is nil")
)

// NewFileRepository creates a repository that reads and writes JSON at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the receipt location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the receipt from disk.
func (r *FileRepository) Load(_ context.Context) (*staging.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read receipt: %w", err)
	}

	var doc structpb.Struct
	if err = protojson.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}

	return fromStruct(&doc)
}

// Save writes the receipt, replacing any previous one.
func (r *FileRepository) Save(_ context.Context, receipt *staging.Receipt) error {
	if receipt == nil {
		return errNilReceipt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := toStruct(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create receipt directory: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	return nil
}

// toStruct converts a receipt into its protobuf JSON document.
func toStruct(receipt *staging.Receipt) (*structpb.Struct, error) {
	references := make([]any, 0, len(receipt.References))
	for _, ref := range receipt.References {
		references = append(references, ref)
	}

	counts := make(map[string]any, len(receipt.Counts))
	for step, n := range receipt.Counts {
		counts[step] = n
	}

	fields := map[string]any{
		"tool_version": receipt.ToolVersion,
		"platform":     receipt.Platform,
		"staging_root": receipt.StagingRoot,
		"references":   references,
		"counts":       counts,
	}

	if !receipt.Timestamp.IsZero() {
		ts, err := protojson.Marshal(timestamppb.New(receipt.Timestamp))
		if err != nil {
			return nil, err
		}

		// Well-known types marshal to a JSON string literal.
		if fields["timestamp"], err = strconv.Unquote(string(ts)); err != nil {
			return nil, err
		}
	}

	if receipt.Actor != nil {
		fields["actor"] = map[string]any{
			"hostname": receipt.Actor.Hostname,
			"username": receipt.Actor.Username,
		}
	}

	return structpb.NewStruct(fields)
}

// fromStruct converts the protobuf JSON document back into a receipt.
func fromStruct(doc *structpb.Struct) (*staging.Receipt, error) {
	fields := doc.GetFields()

	receipt := &staging.Receipt{
		ToolVersion: fields["tool_version"].GetStringValue(),
		Platform:    fields["platform"].GetStringValue(),
		StagingRoot: fields["staging_root"].GetStringValue(),
		Counts:      make(map[string]int),
	}

	if raw := fields["timestamp"].GetStringValue(); raw != "" {
		var ts timestamppb.Timestamp
		if err := protojson.Unmarshal([]byte(strconv.Quote(raw)), &ts); err != nil {
			return nil, fmt.Errorf("decode timestamp: %w", err)
		}

		receipt.Timestamp = ts.AsTime().In(time.UTC)
	}

	if actor := fields["actor"].GetStructValue(); actor != nil {
		receipt.Actor = &staging.Actor{
			Hostname: actor.GetFields()["hostname"].GetStringValue(),
			Username: actor.GetFields()["username"].GetStringValue(),
		}
	}

	for _, value := range fields["references"].GetListValue().GetValues() {
		receipt.References = append(receipt.References, value.GetStringValue())
	}

	for step, value := range fields["counts"].GetStructValue().GetFields() {
		receipt.Counts[step] = int(value.GetNumberValue())
	}

	return receipt, nil
}
