package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docqa-go/internal/docindex"
)

// Payload keys written to every mirrored point.
const (
	payloadDocumentID = "document_id"
	payloadSeq        = "seq"
	payloadContent    = "content"
)

// pointNamespace seeds the deterministic point ids so re-mirroring the same
// document overwrites its points instead of duplicating them.
var pointNamespace = uuid.MustParse("4f0b6c8e-2a55-4c1e-9a0e-6b3f1d9c7e21")

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantMirror copies published document indices into a Qdrant collection.
// The in-memory registry stays the source of truth for retrieval; the mirror
// makes the same vectors inspectable and queryable from outside the process.
type QdrantMirror struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this mirror.
	cfg *QdrantConfig
}

// NewQdrantMirror connects to Qdrant and ensures the target collection
// exists, creating it if necessary.
func NewQdrantMirror(ctx context.Context, cfg *QdrantConfig) (*QdrantMirror, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be positive")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	m := &QdrantMirror{client: client, cfg: cfg}
	if err := m.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return m, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (m *QdrantMirror) ensureCollection(ctx context.Context) error {
	exists, err := m.client.CollectionExists(ctx, m.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = m.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: m.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     m.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", m.cfg.Collection, err)
	}
	return nil
}

// Mirror replaces the mirrored copy of idx. Stale points from a previous,
// longer version of the document are removed first.
func (m *QdrantMirror) Mirror(ctx context.Context, idx *docindex.Index) error {
	if uint64(idx.Dimension()) != m.cfg.VectorSize {
		return fmt.Errorf("qdrant: mirror %q: %w", idx.ID(),
			&docindex.ErrDimensionMismatch{Expected: int(m.cfg.VectorSize), Actual: idx.Dimension()})
	}
	if err := m.DeleteDocument(ctx, idx.ID()); err != nil {
		return err
	}

	_, err := m.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: m.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         Points(idx),
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %q failed: %w", idx.ID(), err)
	}
	return nil
}

// DeleteDocument removes every mirrored point of the given document.
func (m *QdrantMirror) DeleteDocument(ctx context.Context, id string) error {
	_, err := m.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: m.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, id)},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %q failed: %w", id, err)
	}
	return nil
}

// Client returns the underlying Qdrant client for readiness probes.
func (m *QdrantMirror) Client() *qdrant.Client {
	return m.client
}

// Close closes the underlying Qdrant gRPC connection.
func (m *QdrantMirror) Close() error {
	return m.client.Close()
}

// Points converts idx into Qdrant points, one per chunk.
func Points(idx *docindex.Index) []*qdrant.PointStruct {
	texts := idx.Texts()
	vectors := idx.Vectors()

	points := make([]*qdrant.PointStruct, 0, len(texts))
	for i, text := range texts {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(idx.ID(), i)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocumentID: idx.ID(),
				payloadSeq:        int64(i),
				payloadContent:    text,
			}),
		})
	}
	return points
}

// PointID returns the stable point id of chunk seq of document id.
func PointID(id string, seq int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s#%d", id, seq)).String()
}
