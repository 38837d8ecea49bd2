package model

import "fmt"

// Hotel 是检索结果中的一条酒店记录。
type Hotel struct {
	ID          string `json:"id"`
	Name        string `json:"hotelName"`
	Category    string `json:"category"`
	City        string `json:"city"`
	State       string `json:"state"`
	Description string `json:"description"`
}

// RawHotel 对应索引中原始文档的字段名。
type RawHotel struct {
	ID        *string `json:"Id"`
	HotelName *string `json:"HotelName"`
	Category  *string `json:"Category"`
	City      *string `json:"City"`
	State     *string `json:"State"`
	Chunk     *string `json:"chunk"`
	// TextVector 仅在本地索引的种子文件中使用
	TextVector []float32 `json:"text_vector,omitempty"`
}

// ToHotel 严格映射原始字段，缺少任何一个字段时返回错误。
func (r RawHotel) ToHotel() (Hotel, error) {
	fields := []struct {
		name string
		v    *string
	}{
		{"Id", r.ID}, {"HotelName", r.HotelName}, {"Category", r.Category},
		{"City", r.City}, {"State", r.State}, {"chunk", r.Chunk},
	}
	for _, f := range fields {
		if f.v == nil {
			return Hotel{}, fmt.Errorf("hotel record missing field %q", f.name)
		}
	}
	return Hotel{
		ID:          *r.ID,
		Name:        *r.HotelName,
		Category:    *r.Category,
		City:        *r.City,
		State:       *r.State,
		Description: *r.Chunk,
	}, nil
}

// SearchMode 决定检索使用的查询方式。
type SearchMode string

const (
	SearchKeyword SearchMode = "keyword"
	SearchVector  SearchMode = "vector"
	SearchHybrid  SearchMode = "hybrid"
)

// ParseSearchMode 解析模式字符串，空串视为 hybrid。
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(s) {
	case "", SearchHybrid:
		return SearchHybrid, nil
	case SearchKeyword, SearchVector:
		return SearchMode(s), nil
	}
	return "", fmt.Errorf("unknown search mode %q", s)
}

// VectorK 是 vector 模式固定的近邻数量。
const VectorK = 3

// RetrievalQuery 描述一次检索。
type RetrievalQuery struct {
	Text                  string
	Embedding             []float32
	K                     int
	SemanticConfiguration string
	Mode                  SearchMode
}
