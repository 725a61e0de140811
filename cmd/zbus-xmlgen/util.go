package main

import (
	"context"
	"strings"

	"github.com/NedermanGroup/zbus"
	"github.com/creachadair/mds/heapq"
	"github.com/godbus/dbus/v5"
)

func busConn() (*dbus.Conn, error) {
	if globalArgs.UseSessionBus {
		return dbus.ConnectSessionBus()
	}
	return dbus.ConnectSystemBus()
}

// introspectXML fetches the introspection document of one object.
func introspectXML(ctx context.Context, conn *dbus.Conn, dest, path string) (string, error) {
	var doc string
	obj := conn.Object(dest, dbus.ObjectPath(path))
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Introspectable.Introspect", 0).Store(&doc)
	return doc, err
}

// findInterface walks the object tree under root in path order,
// introspecting each object, until it finds one whose document
// declares one of the wanted interfaces. Returns nil with no error
// when the whole tree has been searched without a match.
func findInterface(ctx context.Context, conn *dbus.Conn, dest, root string, wanted []string) (doc []byte, path string, err error) {
	want := map[string]bool{}
	for _, w := range wanted {
		want[w] = true
	}

	objs := heapq.New(strings.Compare)
	objs.Add(root)
	for !objs.IsEmpty() {
		p, _ := objs.Pop()
		log.Debugf("introspecting %s %s", dest, p)
		raw, err := introspectXML(ctx, conn, dest, p)
		if err != nil {
			return nil, "", err
		}
		node, err := zbus.ParseDocument([]byte(raw))
		if err != nil {
			// Skip objects whose peers serve broken documents; the
			// interface may still be found elsewhere in the tree.
			log.Debugf("skipping %s: %v", p, err)
			continue
		}
		for _, iface := range node.Interfaces {
			if want[iface.Name] {
				return []byte(raw), p, nil
			}
		}
		for _, child := range node.Children {
			if child.Name == "" {
				continue
			}
			objs.Add(childPath(p, child.Name))
		}
	}
	return nil, "", nil
}

func childPath(parent, rel string) string {
	if parent == "/" {
		return "/" + rel
	}
	return parent + "/" + rel
}
