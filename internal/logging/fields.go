package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 来源等基础字段，便于不同入口复用。
func BaseFields(action, source string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"source": source,
	}
}

// RequestFields 提供集合/格式/命中状态字段，供资产请求日志复用。
func RequestFields(collection, path, format string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"collection": collection,
		"path":       path,
		"format":     format,
		"cache_hit":  cacheHit,
	}
}

// SecurityFields 标记与路径越界相关的安全事件，便于日志平台单独告警。
func SecurityFields(action, collection, path string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"collection": collection,
		"path":       path,
		"security":   true,
	}
}
