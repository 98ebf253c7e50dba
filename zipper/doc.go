// Package zipper writes and reads zip archives on disk.
//
// # Writing
//
// Open opens an archive for appending, creating an empty one if needed.
// Files are then added one at a time:
//
//	z, err := zipper.Open("/tmp/sample.zip")
//	if err != nil {
//	    return err
//	}
//	defer z.Close()
//
//	// Stored as "data1.txt".
//	err = z.Add("/tmp/data1.txt")
//
//	// Stored as "tmp/dataDir/data2.txt". Extracting into /tmp creates
//	// /tmp/tmp/dataDir/data2.txt.
//	err = z.AddToZip("/tmp/dataDir/data2.txt", false, zipper.BestCompression)
//
// Adding an entry whose name already exists fails with
// osputil.ErrAlreadyExists unless the overwrite flag is set:
//
//	z.SetOverwriteFlag(true)
//	err = z.Add("/tmp/data1.txt") // replaces data1.txt
//
// # Reading
//
//	u, err := zipper.OpenReader("/tmp/sample.zip")
//	if err != nil {
//	    return err
//	}
//	defer u.Close()
//	err = u.UnzipTo(ctx, "/tmp/out")
//
// # Denied Locations
//
// WithDeniedPrefixes rejects any archive, source or destination path under
// the given directories with osputil.ErrIllegalAccess. SharedDenylist builds
// the list for an application's shared directory.
package zipper
