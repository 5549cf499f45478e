// Package assets 实现集合资产的读取与删除处理器：读取时按 ?type= 生成或复用派生文件，
// 删除时只清理默认有损格式的缓存派生，源文件永远不可达。
package assets
