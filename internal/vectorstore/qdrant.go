package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const upsertBatchSize = 100

type qdrantIndex struct {
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
	collection  string
}

// NewQdrantIndex connects over gRPC and creates the collection (cosine
// distance, dim-sized vectors, keyword index on document_id) when missing.
func NewQdrantIndex(ctx context.Context, addr, collection string, dim int) (Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	idx := &qdrantIndex{
		conn:        conn,
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
		collection:  collection,
	}

	if err := idx.ensureCollection(ctx, dim); err != nil {
		conn.Close()
		return nil, err
	}
	return idx, nil
}

func (q *qdrantIndex) ensureCollection(ctx context.Context, dim int) error {
	collections, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range collections.GetCollections() {
		if col.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	wait := true
	_, err = q.points.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		Wait:           &wait,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to index document_id: %w", err)
	}
	return nil
}

func (q *qdrantIndex) Upsert(ctx context.Context, records []Record) error {
	wait := true
	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))

		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, r := range records[start:end] {
			points = append(points, toPoint(r))
		}

		_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points: %w", err)
		}
	}
	return nil
}

func (q *qdrantIndex) Query(ctx context.Context, documentID string, vector []float32, topK int) ([]Match, error) {
	resp, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		Filter:         documentFilter(documentID),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	matches := make([]Match, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		matches = append(matches, fromScoredPoint(point))
	}
	return matches, nil
}

func (q *qdrantIndex) DeleteDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: documentFilter(documentID)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (q *qdrantIndex) Close() error {
	return q.conn.Close()
}

func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "document_id",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: documentID},
						},
					},
				},
			},
		},
	}
}

func toPoint(r Record) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{Uuid: r.ID},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: r.Vector},
			},
		},
		Payload: map[string]*qdrant.Value{
			"document_id": {Kind: &qdrant.Value_StringValue{StringValue: r.DocumentID}},
			"chunk_id":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(r.ChunkID)}},
			"chunk_text":  {Kind: &qdrant.Value_StringValue{StringValue: r.Text}},
		},
	}
}

func fromScoredPoint(p *qdrant.ScoredPoint) Match {
	m := Match{Score: p.GetScore()}
	if v, ok := p.GetPayload()["chunk_id"]; ok {
		m.ChunkID = int(v.GetIntegerValue())
	}
	if v, ok := p.GetPayload()["chunk_text"]; ok {
		m.Text = v.GetStringValue()
	}
	return m
}
