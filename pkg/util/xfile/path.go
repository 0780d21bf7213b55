package xfile

import (
	"fmt"
	"path/filepath"
	"strings"
)

// containsNullByte Linux 在空字节处截断路径，Go 侧看到的路径与内核不一致
func containsNullByte(path string) bool {
	return strings.ContainsRune(path, 0)
}

// hasDotDotSegment 判断是否存在恰好为 ".." 的路径段，'/' 与 '\' 都视为分隔符
func hasDotDotSegment(path string) bool {
	i := 0
	for i < len(path) {
		if path[i] == '/' || path[i] == '\\' {
			i++
			continue
		}
		j := i
		for j < len(path) && path[j] != '/' && path[j] != '\\' {
			j++
		}
		if j-i == 2 && path[i] == '.' && path[i+1] == '.' {
			return true
		}
		i = j
	}
	return false
}

// SanitizePath 对文件路径做格式净化并返回规范化结果。
//
// 接受绝对路径，绝对路径中的 ".." 由 filepath.Clean 正常解析；
// 需要限制在某个目录内时使用 [ResolveIn]。
func SanitizePath(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename is required: %w", ErrEmptyPath)
	}
	if containsNullByte(filename) {
		return "", fmt.Errorf("filename contains null byte: %w", ErrNullByte)
	}
	// Clean 会去掉尾部分隔符，必须先判断
	if strings.HasSuffix(filename, "/") || strings.HasSuffix(filename, "\\") {
		return "", fmt.Errorf("path is a directory: %w", ErrInvalidPath)
	}

	cleaned := filepath.Clean(filename)
	if hasDotDotSegment(cleaned) {
		return "", fmt.Errorf("path traversal in filename: %w", ErrPathTraversal)
	}

	base := filepath.Base(cleaned)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("no file name specified: %w", ErrInvalidPath)
	}
	return cleaned, nil
}

// ResolveIn 解析日志文件路径。
//
// root 为空或 path 已是绝对路径时等价于 SanitizePath；
// 否则 root 必须是绝对路径，结果为 root 下的文件且不会逃出 root。
func ResolveIn(root, path string) (string, error) {
	if root == "" || filepath.IsAbs(path) {
		return SanitizePath(path)
	}
	if containsNullByte(root) {
		return "", fmt.Errorf("root contains null byte: %w", ErrNullByte)
	}
	cleanRoot := filepath.Clean(root)
	if !filepath.IsAbs(cleanRoot) {
		return "", fmt.Errorf("root must be an absolute path: %w", ErrInvalidPath)
	}

	cleanPath, err := SanitizePath(path)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(cleanRoot, cleanPath)
	rel, err := filepath.Rel(cleanRoot, joined)
	if err != nil || hasDotDotSegment(rel) {
		return "", ErrPathEscaped
	}
	return joined, nil
}
