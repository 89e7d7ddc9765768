package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1024

	// payloadTenantKey partitions the collection by client/company; every
	// search carries a filter on it so tenants' vectors never collide.
	payloadTenantKey = "tenant_id"

	// payloadLoadedAtTS is the numeric (unix seconds) ingest timestamp
	// used for age-based garbage collection.
	payloadLoadedAtTS = "loaded_at_ts"

	// payloadPinnedKey flags points that age-based deletion must spare.
	payloadPinnedKey = "pinned"
)

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds the API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// VectorPoint is one chunk ready for upsert: an ID, its embedding, and
// the merged payload.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// NearestHit is the single nearest neighbor returned by SearchNearest.
type NearestHit struct {
	ID    string
	Score float32
}

// QdrantRepository is the vector store adapter: batch upsert,
// tenant-scoped nearest-neighbor search, and age-based deletion.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption

	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		// TLS 1.3 minimum for Qdrant Cloud
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection.
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection and the tenant payload index
// if they don't exist, and verifies the vector dimension otherwise.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Keyword index on the tenant key keeps filtered searches fast as
	// the shared pool grows.
	fieldType := pb.FieldType_FieldTypeKeyword
	_, err = r.pointsClient.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: r.collectionName,
		FieldName:      payloadTenantKey,
		FieldType:      &fieldType,
	})
	if err != nil {
		return fmt.Errorf("failed to create tenant index: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}
	config := info.GetConfig()
	if config == nil {
		return 0, false
	}
	params := config.GetParams()
	if params == nil {
		return 0, false
	}
	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}
	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}
	return 0, false
}

// UpsertBatch writes all points in one call. An empty batch is a no-op.
func (r *QdrantRepository) UpsertBatch(ctx context.Context, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	pbPoints := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		pbPoints = append(pbPoints, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: payloadToValues(p.Payload),
		})
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         pbPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// SearchNearest returns the single nearest neighbor within the given
// tenant's partition, or nil when the partition is empty.
func (r *QdrantRepository) SearchNearest(ctx context.Context, vector []float32, tenantID string) (*NearestHit, error) {
	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          1,
		Filter: &pb.Filter{
			Must: []*pb.Condition{keywordCondition(payloadTenantKey, tenantID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}

	scored := resp.Result[0]
	return &NearestHit{
		ID:    scored.Id.GetUuid(),
		Score: scored.Score,
	}, nil
}

// DeleteOlderThan removes points ingested before cutoff across all
// tenants. With excludeSpecial, points whose payload carries pinned=true
// are spared.
func (r *QdrantRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, excludeSpecial bool) error {
	lt := float64(cutoff.Unix())
	filter := &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key:   payloadLoadedAtTS,
						Range: &pb.Range{Lt: &lt},
					},
				},
			},
		},
	}
	if excludeSpecial {
		filter.MustNot = []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: payloadPinnedKey,
						Match: &pb.Match{
							MatchValue: &pb.Match_Boolean{Boolean: true},
						},
					},
				},
			},
		}
	}

	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete old points: %w", err)
	}
	return nil
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// payloadToValues converts a generic payload map to Qdrant values.
func payloadToValues(payload map[string]interface{}) map[string]*pb.Value {
	values := make(map[string]*pb.Value, len(payload))
	for k, v := range payload {
		values[k] = toValue(v)
	}
	return values
}

func toValue(v interface{}) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	case time.Time:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val.UTC().Format(time.RFC3339)}}
	case []string:
		items := make([]*pb.Value, len(val))
		for i, s := range val {
			items[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: items}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}
