// Package pathguard decides whether a path built from untrusted request
// segments stays inside a declared root. The check is lexical: it works on
// cleaned strings only and never touches the filesystem, so it is safe to call
// with paths that do not exist yet (cache targets, deleted assets).
package pathguard

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrPathViolation 表示候选路径逃逸出声明的根目录。
var ErrPathViolation = errors.New("path escapes root")

// IsContained reports whether candidate is a strict descendant of root.
// root itself, its ancestors and anything reached through ".." are rejected.
func IsContained(root, candidate string) bool {
	if root == "" || candidate == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(candidate))
	if err != nil {
		return false
	}
	if rel == "" || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	parent := ".."
	if rel == parent || strings.HasPrefix(rel, parent+string(filepath.Separator)) {
		return false
	}
	return true
}

// Resolve 将请求段拼接到 root 下，并在结果不属于 root 时返回 ErrPathViolation。
func Resolve(root string, segments ...string) (string, error) {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, root)
	for _, seg := range segments {
		if filepath.IsAbs(seg) {
			return "", ErrPathViolation
		}
		parts = append(parts, seg)
	}
	candidate := filepath.Join(parts...)
	if !IsContained(root, candidate) {
		return "", ErrPathViolation
	}
	return candidate, nil
}

// Overlaps 判断两个根目录是否相同或互相嵌套，用于启动时校验 source/cache 根互不干扰。
func Overlaps(a, b string) bool {
	ca, cb := filepath.Clean(a), filepath.Clean(b)
	return ca == cb || IsContained(ca, cb) || IsContained(cb, ca)
}
