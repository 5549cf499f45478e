package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/any-hub/imghub/internal/pathguard"
)

var validate = validator.New()

// Validate 先做 struct tag 校验，再做标签无法表达的语义校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	g := c.Global
	if pathguard.Overlaps(g.ImagesPath, g.CachePath) {
		return newFieldError("Global.CachePath", "不能与 ImagesPath 相同或互相嵌套")
	}
	if strings.Contains(g.URLPrefix, "..") || strings.HasPrefix(g.URLPrefix, "/-") {
		return newFieldError("Global.URLPrefix", "包含非法路径段")
	}

	seen := map[string]struct{}{}
	for _, name := range c.Collections {
		if _, exists := seen[name]; exists {
			return newFieldError(collectionField(name), "重复")
		}
		seen[name] = struct{}{}

		if err := validateCollectionName(name); err != nil {
			return fmt.Errorf("%s: %w", collectionField(name), err)
		}
	}

	return nil
}

// validateCollectionName 要求集合名是单个干净的路径段，避免拼接目录时逃逸。
func validateCollectionName(name string) error {
	if name == "." || name == ".." {
		return errors.New("名称不能为 . 或 ..")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.New("名称不能包含路径分隔符")
	}
	if strings.HasPrefix(name, "-") {
		return errors.New("名称不能以 - 开头")
	}
	return nil
}

// formatValidationError 将 validator 错误转换为 FieldError，只返回第一个失败字段。
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return newFieldError(e.Namespace(), fmt.Sprintf("校验失败 %s=%s (值: %v)", e.Tag(), e.Param(), e.Value()))
	}
	return err
}
