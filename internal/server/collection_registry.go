package server

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/any-hub/imghub/internal/cache"
	"github.com/any-hub/imghub/internal/config"
)

// CollectionRoute 将集合名称与解析后的源/缓存目录聚合在一起，供路由与资产处理器直接复用。
type CollectionRoute struct {
	// Name 同时是 URL 段与目录名，例如 Logos。
	Name string
	// SourceRoot 只读源目录，CacheRoot 为派生文件目录，二者在启动后不再变化。
	SourceRoot string
	CacheRoot  string
	// URLPath 是该集合在路由中的前缀（已包含全局 URL 前缀）。
	URLPath string
}

// Cache 返回派生缓存使用的集合描述。
func (r *CollectionRoute) Cache() cache.Collection {
	return cache.Collection{Name: r.Name, SourceRoot: r.SourceRoot}
}

// CollectionRegistry 提供集合名称到 CollectionRoute 的查询能力。
type CollectionRegistry struct {
	routes  map[string]*CollectionRoute
	ordered []*CollectionRoute
}

// NewCollectionRegistry 根据配置构建集合路由表。调用方应在启动阶段创建一次并复用。
func NewCollectionRegistry(cfg *config.Config) (*CollectionRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	collections := cfg.CollectionList()
	registry := &CollectionRegistry{
		routes: make(map[string]*CollectionRoute, len(collections)),
	}

	for _, col := range collections {
		if col.Name == "" {
			return nil, errors.New("collection name is empty")
		}
		if _, exists := registry.routes[col.Name]; exists {
			return nil, fmt.Errorf("duplicate collection %s", col.Name)
		}
		if col.SourceRoot == col.CacheRoot {
			return nil, fmt.Errorf("collection %s: source and cache roots are identical", col.Name)
		}

		route := &CollectionRoute{
			Name:       col.Name,
			SourceRoot: filepath.Clean(col.SourceRoot),
			CacheRoot:  filepath.Clean(col.CacheRoot),
			URLPath:    cfg.Global.URLPrefix + "/" + col.Name,
		}
		registry.routes[col.Name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据集合名称查找 CollectionRoute，名称大小写敏感。
func (r *CollectionRegistry) Lookup(name string) (*CollectionRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[name]
	return route, ok
}

// List 返回当前注册的 CollectionRoute 列表（按配置定义的顺序），用于诊断输出。
func (r *CollectionRegistry) List() []CollectionRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]CollectionRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

// Collections 返回派生缓存视角的集合列表，供预缓存任务使用。
func (r *CollectionRegistry) Collections() []cache.Collection {
	if r == nil {
		return nil
	}
	result := make([]cache.Collection, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = route.Cache()
	}
	return result
}
