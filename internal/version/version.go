// Package version 保存 Digital RF 工具集的版本号。
package version

// Version 是写入 drf_properties / dmd_properties 的格式与库版本。
const Version = "2.6.8"
