// Package dx implements the file access protocol for the dx platform.
//
// Platform objects are identified by object id, owning container and
// version rather than by path alone, so dx:// URIs come in three forms:
//
//	dx://project-x:file-y    object id within a known container
//	dx://file-y              object id, container unknown
//	dx://project-x:/a/b.txt  absolute path within a container
//
// Folders are not objects on the platform; directory sources are
// synthesized from folder strings the same way S3 prefixes are.
package dx

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/fluxfs/fluxfs/pkg/listing"
	"github.com/fluxfs/fluxfs/pkg/platform"
	"github.com/fluxfs/fluxfs/pkg/source"
)

// Protocol resolves dx:// URIs through a platform client. Describe
// traffic funnels through a bulk resolver so repeated resolutions batch
// and hit its cache.
type Protocol struct {
	client platform.Client
	bulk   *platform.BulkResolver
}

// NewProtocol creates the dx protocol. A nil bulk resolver gets one with
// default options; pass a shared instance to pool its describe cache
// across consumers.
func NewProtocol(client platform.Client, bulk *platform.BulkResolver) (*Protocol, error) {
	if client == nil {
		return nil, fmt.Errorf("platform client is required")
	}
	if bulk == nil {
		var err error
		bulk, err = platform.NewBulkResolver(client, platform.BulkResolverOptions{})
		if err != nil {
			return nil, err
		}
	}
	return &Protocol{client: client, bulk: bulk}, nil
}

// Bulk exposes the underlying bulk resolver for callers that want to
// batch describes across many URIs before resolving them one by one.
func (p *Protocol) Bulk() *platform.BulkResolver {
	return p.bulk
}

// Schemes implements source.Protocol.
func (p *Protocol) Schemes() []string {
	return []string{"dx"}
}

// OnExit implements source.Protocol.
func (p *Protocol) OnExit() error {
	return p.client.Close()
}

// ref is a parsed dx URI.
type ref struct {
	project string
	id      platform.ObjectID
	path    string // absolute in-container path; "" for id forms
}

func parseURI(uri string) (ref, error) {
	rest, ok := strings.CutPrefix(uri, "dx://")
	if !ok || rest == "" {
		return ref{}, source.NewUnresolvable(uri)
	}

	project, tail, hasProject := strings.Cut(rest, ":")
	if !hasProject {
		// Bare object id, container unknown.
		if strings.Contains(rest, "/") {
			return ref{}, source.NewUnresolvable(uri)
		}
		return ref{id: platform.ObjectID(rest)}, nil
	}

	if project == "" || tail == "" {
		return ref{}, source.NewUnresolvable(uri)
	}
	if strings.HasPrefix(tail, "/") {
		return ref{project: project, path: path.Clean(tail)}, nil
	}
	if strings.Contains(tail, "/") {
		return ref{}, source.NewUnresolvable(uri)
	}
	return ref{project: project, id: platform.ObjectID(tail)}, nil
}

// Resolve implements source.Protocol.
func (p *Protocol) Resolve(ctx context.Context, uri string) (source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	if r.id != "" {
		return p.resolveID(ctx, uri, r)
	}
	return p.resolvePath(ctx, uri, r)
}

// ResolveDirectory implements source.Protocol. Only the path form can
// denote a folder; folders have no object ids.
func (p *Protocol) ResolveDirectory(ctx context.Context, uri string) (source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	if r.path == "" {
		return nil, &source.Error{Code: source.ErrUnresolvable, Message: "object ids cannot denote folders", URI: uri}
	}
	return p.folderObject(r.project, r.path, nil), nil
}

func (p *Protocol) resolveID(ctx context.Context, uri string, r ref) (source.Source, error) {
	described, err := p.bulk.DescribeAll(ctx,
		[]platform.Ref{{ID: r.id, Container: r.project}},
		platform.DescribeOptions{Validate: true})
	if err != nil {
		return nil, err
	}
	if len(described) > 1 {
		containers := make([]string, len(described))
		for i, d := range described {
			containers[i] = d.Metadata.Container
		}
		return nil, source.NewAmbiguousObject(string(r.id),
			fmt.Sprintf("object exists in multiple containers: %s", strings.Join(containers, ", ")))
	}
	return p.fromMetadata(uri, described[0].Metadata), nil
}

func (p *Protocol) resolvePath(ctx context.Context, uri string, r ref) (source.Source, error) {
	folder := path.Dir(r.path)
	name := path.Base(r.path)

	matches, err := p.bulk.Query(platform.FindQuery{
		Container: r.project,
		Folder:    folder,
		Names:     []string{name},
	}).All(ctx)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, source.NewObjectNotFound(r.project, r.path)
	case 1:
		return p.fromMetadata(uri, matches[0]), nil
	default:
		return nil, source.NewAmbiguousObject(r.path,
			fmt.Sprintf("%d objects named %q in %s%s", len(matches), name, r.project, folder))
	}
}

func (p *Protocol) fromMetadata(addr string, md platform.Metadata) *Object {
	o := &Object{
		proto:   p,
		addr:    addr,
		id:      md.ID,
		project: md.Container,
		name:    md.Name,
		folder:  md.Folder,
		version: md.Version,
		size:    md.Size,
	}
	if enc, ok := md.Details["encoding"].(string); ok {
		o.encoding = enc
	}
	return o
}

func (p *Protocol) folderObject(project, folderPath string, parent *Object) *Object {
	o := &Object{proto: p, project: project, dir: true, parent: parent}
	if folderPath == "/" {
		o.folder = "/"
	} else {
		o.folder = path.Dir(folderPath)
		o.name = path.Base(folderPath)
	}
	return o
}

// Object is a dx platform source. File objects carry the metadata they
// were resolved with; folder objects are synthetic.
type Object struct {
	proto    *Protocol
	addr     string
	id       platform.ObjectID
	project  string
	name     string
	folder   string
	version  string
	encoding string
	size     int64
	dir      bool

	parent   *Object
	children []source.Source
}

var (
	_ source.Readable    = (*Object)(nil)
	_ source.Addressable = (*Object)(nil)
)

// fullPath is the absolute in-container path of the source.
func (o *Object) fullPath() string {
	if o.name == "" {
		return o.folder
	}
	return path.Join(o.folder, o.name)
}

// Address implements source.Source. Sources resolved from a URI keep it;
// sources built by listings get the canonical path form.
func (o *Object) Address() string {
	if o.addr != "" {
		return o.addr
	}
	return "dx://" + o.project + ":" + o.fullPath()
}

// Name implements source.Source.
func (o *Object) Name() string {
	if o.name == "" {
		return o.project
	}
	return o.name
}

// Folder implements source.Source.
func (o *Object) Folder() string {
	return o.folder
}

// Container implements source.Source.
func (o *Object) Container() string {
	return o.project
}

// Version implements source.Source.
func (o *Object) Version() string {
	return o.version
}

// Encoding implements source.Source. The platform reports an encoding,
// when one is declared, among the describe details.
func (o *Object) Encoding() string {
	return o.encoding
}

// IsDirectory implements source.Source.
func (o *Object) IsDirectory() bool {
	return o.dir
}

// ID returns the platform object id ("" for folders).
func (o *Object) ID() platform.ObjectID {
	return o.id
}

// Size implements source.Source. File sizes come from the describe that
// resolved the object; folders report zero.
func (o *Object) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return o.size, nil
}

// Open implements source.Readable.
func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.dir {
		return nil, fmt.Errorf("cannot open folder %s for reading", o.Address())
	}
	return o.proto.client.Download(ctx, o.project, o.id)
}

// base is the folder relative resolution happens against.
func (o *Object) base() string {
	if o.dir {
		return o.fullPath()
	}
	return o.folder
}

// Resolve implements source.Addressable.
func (o *Object) Resolve(ctx context.Context, rel string) (source.Source, error) {
	full := path.Join(o.base(), rel)
	return o.proto.resolvePath(ctx, "dx://"+o.project+":"+full, ref{project: o.project, path: full})
}

// ResolveDirectory implements source.Addressable.
func (o *Object) ResolveDirectory(ctx context.Context, rel string) (source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o.proto.folderObject(o.project, path.Join(o.base(), rel), nil), nil
}

// Parent implements source.Addressable. The container root has no parent.
func (o *Object) Parent() (source.Source, bool) {
	if o.parent != nil {
		return o.parent, true
	}
	if o.dir && o.fullPath() == "/" {
		return nil, false
	}
	return o.proto.folderObject(o.project, o.folder, nil), true
}

// Relativize implements source.Addressable.
func (o *Object) Relativize(other source.Source) (string, error) {
	odx, ok := other.(*Object)
	if !ok || odx.project != o.project {
		return "", fmt.Errorf("%s is not in container %s", other.Address(), o.project)
	}
	base := o.base()
	if base == "/" {
		return strings.TrimPrefix(odx.fullPath(), "/"), nil
	}
	rel, ok := strings.CutPrefix(odx.fullPath(), base+"/")
	if !ok {
		return "", fmt.Errorf("%s is not beneath %s", other.Address(), o.Address())
	}
	return rel, nil
}

// Listing implements source.Addressable. The platform enumerates objects
// by folder string, so both shallow and recursive listings run one
// recursive find and synthesize the tree locally. Recursive results wire
// parent pointers and cached child listings; revisiting a nested folder
// issues no further queries. The listed folder itself stays uncached, so
// repeated calls on the same source see objects added since.
func (o *Object) Listing(ctx context.Context, recursive bool) ([]source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !o.dir {
		return nil, fmt.Errorf("%s is not a folder", o.Address())
	}

	if o.children != nil {
		if !recursive {
			return o.children, nil
		}
		return flatten(o.children), nil
	}

	matches, err := o.proto.bulk.Query(platform.FindQuery{
		Container: o.project,
		Folder:    o.fullPath(),
		Recursive: true,
	}).All(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]listing.Entry, len(matches))
	byPath := make(map[string]platform.Metadata, len(matches))
	for i, md := range matches {
		key := path.Join(md.Folder, md.Name)
		entries[i] = listing.Entry{Key: key, Size: md.Size}
		byPath[key] = md
	}

	if !recursive {
		return o.shallowFromNodes(listing.Shallow(o.fullPath(), entries), byPath), nil
	}

	root := listing.Tree(o.fullPath(), entries)
	byNode := map[*listing.Node]*Object{root: o}
	out := make([]source.Source, 0, len(entries))
	listing.Walk(root, func(n *listing.Node) {
		parent := byNode[n.Parent]
		obj := o.oneFromNode(n, parent, byPath)
		if n.IsDir {
			obj.children = []source.Source{}
			byNode[n] = obj
		}
		if parent != o {
			parent.children = append(parent.children, obj)
		}
		out = append(out, obj)
	})
	return out, nil
}

func (o *Object) shallowFromNodes(nodes []*listing.Node, byPath map[string]platform.Metadata) []source.Source {
	out := make([]source.Source, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, o.oneFromNode(n, o, byPath))
	}
	return out
}

func (o *Object) oneFromNode(n *listing.Node, parent *Object, byPath map[string]platform.Metadata) *Object {
	full := path.Join(o.fullPath(), n.Path)
	if n.IsDir {
		return o.proto.folderObject(o.project, full, parent)
	}
	md := byPath[n.Key]
	obj := o.proto.fromMetadata("", md)
	obj.parent = parent
	return obj
}

func flatten(children []source.Source) []source.Source {
	var out []source.Source
	for _, c := range children {
		out = append(out, c)
		if obj, ok := c.(*Object); ok && obj.dir && obj.children != nil {
			out = append(out, flatten(obj.children)...)
		}
	}
	return out
}
