//go:build !windows

package filesystem

import (
    "os"
)

// osReplace: POSIX 下 rename 即原子替换。
func osReplace(tmpPath, dest string) error {
    return os.Rename(tmpPath, dest)
}

// syncDir: 最佳努力 fsync 父目录以持久化元数据。
func syncDir(dir string) error {
    f, err := os.Open(dir)
    if err != nil {
        return err
    }
    defer f.Close()
    if err := f.Sync(); err != nil {
        return err
    }
    return nil
}

