package handler

import (
	"fmt"
	"time"

	"github.com/msomdec/murmur/internal/domain"
)

// PostDTO is the JSON representation of a single post.
type PostDTO struct {
	ID         string   `json:"id"`
	Author     string   `json:"author"`
	Content    string   `json:"content"`
	Parent     string   `json:"parent,omitempty"`
	Media      []string `json:"media"`
	Likes      []string `json:"likes"`
	LikesCount int      `json:"likesCount"`
	CreatedAt  string   `json:"createdAt"`
}

func toPostDTO(p *domain.Post) PostDTO {
	likes := p.Likes
	if likes == nil {
		likes = []string{}
	}
	return PostDTO{
		ID:         p.ID,
		Author:     p.AuthorID,
		Content:    p.Content,
		Parent:     p.ParentID,
		Media:      mediaURLs(p),
		Likes:      likes,
		LikesCount: p.LikesCount,
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
	}
}

// PostSummaryDTO is a post as listed on an author's page: no media bytes
// and no liker IDs.
type PostSummaryDTO struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Parent     string `json:"parent,omitempty"`
	MediaCount int    `json:"mediaCount"`
	LikesCount int    `json:"likesCount"`
	CreatedAt  string `json:"createdAt"`
}

func toPostSummaryDTOs(posts []domain.Post) []PostSummaryDTO {
	dtos := make([]PostSummaryDTO, len(posts))
	for i, p := range posts {
		dtos[i] = PostSummaryDTO{
			ID:         p.ID,
			Content:    p.Content,
			Parent:     p.ParentID,
			MediaCount: len(p.MediaKeys),
			LikesCount: p.LikesCount,
			CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}

func mediaURLs(p *domain.Post) []string {
	urls := make([]string, len(p.MediaKeys))
	for i := range p.MediaKeys {
		urls[i] = fmt.Sprintf("/api/posts/%s/media/%d", p.ID, i)
	}
	return urls
}

// tokenResponse carries a freshly issued session token.
type tokenResponse struct {
	Token string `json:"token"`
}
