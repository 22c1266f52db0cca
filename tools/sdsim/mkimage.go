package sdsim

import (
	"fmt"
	"os"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

const (
	sectorSize     = 512
	partitionStart = 2048 // sectors, 1MiB aligned
	volumeLabel    = "SDSIM"
)

const readme = `This image backs the simulated SD card of sdsim.
`

// MakeImage creates a card image of size bytes at path with an MBR and a
// single FAT32 partition.
func MakeImage(path string, size int64) error {
	if size < (partitionStart+65536)*sectorSize {
		return fmt.Errorf("image of %d bytes too small for FAT32", size)
	}

	d, err := diskfs.Create(path, size, diskfs.Raw, diskfs.SectorSize512)
	if err != nil {
		return err
	}

	table := &mbr.Table{
		LogicalSectorSize:  sectorSize,
		PhysicalSectorSize: sectorSize,
		Partitions: []*mbr.Partition{{
			Bootable: false,
			Type:     mbr.Fat32LBA,
			Start:    partitionStart,
			Size:     uint32(size/sectorSize - partitionStart),
		}},
	}
	if err := d.Partition(table); err != nil {
		return fmt.Errorf("partition: %w", err)
	}

	fs, err := d.CreateFilesystem(disk.FilesystemSpec{
		Partition:   1,
		FSType:      filesystem.TypeFat32,
		VolumeLabel: volumeLabel,
	})
	if err != nil {
		return fmt.Errorf("create filesystem: %w", err)
	}

	f, err := fs.OpenFile("/README.TXT", os.O_CREATE|os.O_RDWR)
	if err != nil {
		return err
	}
	_, err = f.Write([]byte(readme))
	return err
}
