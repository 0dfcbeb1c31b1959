//go:build windows
// +build windows

package fs

import (
	"encoding/binary"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// createLink ignores relTarget and creates an NTFS directory junction
// pointing at the absolute absTarget. Junctions, unlike symlinks, do not
// require SeCreateSymbolicLinkPrivilege, which is the reason the link farm
// uses them on this platform instead of os.Symlink.
func createLink(linkPath, relTarget, absTarget string) error {
	if err := os.Mkdir(linkPath, 0); err != nil {
		return errors.Wrapf(err, "cannot create junction directory %s", linkPath)
	}

	if err := setJunction(linkPath, absTarget); err != nil {
		os.Remove(linkPath)
		return errors.Wrapf(err, "cannot set junction %s -> %s", linkPath, absTarget)
	}
	return nil
}

const (
	fsctlSetReparsePoint  = 0x000900A4
	reparseTagMountPoint  = 0xA0000003
	reparseDataHeaderSize = 8
)

// setJunction marks dir (already created as an empty directory) as an NTFS
// mount-point reparse point whose substitute name resolves to target.
func setJunction(dir, target string) error {
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(dir),
		windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OPEN_REPARSE_POINT|windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	subst := `\??\` + target
	print := target

	substUTF16, err := syscall.UTF16FromString(subst)
	if err != nil {
		return err
	}
	printUTF16, err := syscall.UTF16FromString(print)
	if err != nil {
		return err
	}
	// Drop the trailing NUL UTF16FromString appends; the reparse buffer
	// encodes lengths explicitly rather than relying on termination.
	substUTF16 = substUTF16[:len(substUTF16)-1]
	printUTF16 = printUTF16[:len(printUTF16)-1]

	substBytes := utf16ToBytes(substUTF16)
	printBytes := utf16ToBytes(printUTF16)

	pathBufferLen := len(substBytes) + 2 + len(printBytes) + 2
	reparseDataLen := 8 + pathBufferLen
	buf := make([]byte, reparseDataHeaderSize+reparseDataLen)

	binary.LittleEndian.PutUint32(buf[0:4], reparseTagMountPoint)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(reparseDataLen))
	// buf[6:8] reserved, left zero.

	off := reparseDataHeaderSize
	binary.LittleEndian.PutUint16(buf[off:off+2], 0)                    // SubstituteNameOffset
	binary.LittleEndian.PutUint16(buf[off+2:off+4], uint16(len(substBytes))) // SubstituteNameLength
	binary.LittleEndian.PutUint16(buf[off+4:off+6], uint16(len(substBytes)+2))
	binary.LittleEndian.PutUint16(buf[off+6:off+8], uint16(len(printBytes)))

	pathBufOff := off + 8
	copy(buf[pathBufOff:], substBytes)
	pathBufOff += len(substBytes) + 2 // +2 for the substitute name's NUL terminator
	copy(buf[pathBufOff:], printBytes)

	var bytesReturned uint32
	return windows.DeviceIoControl(
		h,
		fsctlSetReparsePoint,
		&buf[0],
		uint32(len(buf)),
		nil,
		0,
		&bytesReturned,
		nil,
	)
}

func utf16ToBytes(u []uint16) []byte {
	b := make([]byte, len(u)*2)
	for i, v := range u {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}
