package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"

	"calseed/internal/models"
)

const pageSize = 500

// Service lists organization members via the Google Admin SDK Directory API,
// using domain-wide delegation with an admin subject.
type Service struct {
	svc    *admin.Service
	domain string

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewService builds a directory service from a service-account credentials
// file, impersonating the given admin subject.
func NewService(ctx context.Context, credentialsFile, subject, domain string) (*Service, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(data, admin.AdminDirectoryUserReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	jwt.Subject = subject

	svc, err := admin.NewService(ctx, option.WithTokenSource(jwt.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create directory service: %w", err)
	}

	return &Service{svc: svc, domain: domain}, nil
}

// UseRedisCache configures optional caching of the user list.
func (s *Service) UseRedisCache(client *redis.Client, ttl time.Duration) {
	s.redis = client
	s.cacheTTL = ttl
}

// ListUsers returns every non-suspended member of the domain, paginating
// transparently.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	cacheKey := "directory:users:" + s.domain

	var cached []models.User
	if s.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	var users []models.User
	pageToken := ""
	for {
		call := s.svc.Users.List().Domain(s.domain).OrderBy("email").MaxResults(pageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}

		for _, u := range resp.Users {
			if u.Suspended {
				continue
			}
			name := ""
			if u.Name != nil {
				name = u.Name.FullName
			}
			users = append(users, models.User{
				ID:          u.Id,
				DisplayName: name,
				Email:       u.PrimaryEmail,
			})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	s.writeCache(ctx, cacheKey, users)
	return users, nil
}

func (s *Service) readCache(ctx context.Context, key string, out any) bool {
	if s.redis == nil || s.cacheTTL <= 0 {
		return false
	}
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (s *Service) writeCache(ctx context.Context, key string, val any) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, key, data, s.cacheTTL).Err()
}
