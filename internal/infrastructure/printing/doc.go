// Package printing renders shipping label sheets and keeps the documents.
//
// LabelTemplate turns a fulfillment.LabelSheet into one HTML page per label.
// ChromedpRenderer prints that page to PDF through headless Chrome and
// HTMLRenderer returns it as-is when no browser is available. Both satisfy
// fulfillment.LabelRenderer.
//
// FileSystemStorage is the local fulfillment.ArtifactStore; the S3 store
// lives in the storage package.
//
//	tmpl, err := printing.NewLabelTemplate("en-US", printing.DefaultLabelPage)
//	if err != nil {
//	    return err
//	}
//	renderer, err := printing.NewChromedpRenderer(tmpl, &printing.ChromedpConfig{NoSandbox: true})
//	if err != nil {
//	    return err
//	}
//	defer renderer.Close()
//
//	pdf, err := renderer.Render(ctx, sheet)
package printing
